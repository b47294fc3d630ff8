package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xiaot623/gogo/planner/internal/app"
	"github.com/xiaot623/gogo/planner/internal/config"
	"github.com/xiaot623/gogo/planner/internal/domain"
)

var submitCmd = &cobra.Command{
	Use:   "submit <preferences.yaml>",
	Short: "Queue an itinerary run on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := loadRequest(args[0])
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		c := newClient(viper.GetString("server"))
		resp, err := c.submit(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s queued as job %s\n", resp.RunID, resp.JobID)

		if follow, _ := cmd.Flags().GetBool("watch"); follow {
			return c.watch(ctx, resp.RunID, func(msg domain.ProgressMessage) {
				printProgress(cmd.OutOrStdout(), msg)
			})
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <run_id>",
	Short: "Show the status of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := newClient(viper.GetString("server")).run(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd, run)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "RUN\t%s\n", run.RunID)
		fmt.Fprintf(w, "JOB\t%s\n", run.JobID)
		fmt.Fprintf(w, "STATUS\t%s\n", run.Status)
		fmt.Fprintf(w, "PROGRESS\t%d%%\n", run.Percent)
		if len(run.Error) > 0 {
			fmt.Fprintf(w, "ERROR\t%s\n", run.Error)
		}
		return w.Flush()
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <run_id>",
	Short: "Follow the progress of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return newClient(viper.GetString("server")).watch(ctx, args[0], func(msg domain.ProgressMessage) {
			printProgress(cmd.OutOrStdout(), msg)
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run <preferences.yaml>",
	Short: "Plan an itinerary in-process and print it",
	Long: `Run builds the planner from the environment (and .env) exactly as the
server does, plans one itinerary and prints the result as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := loadRequest(args[0])
		if err != nil {
			return err
		}
		_ = godotenv.Load()
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if mock, _ := cmd.Flags().GetBool("mock"); mock {
			cfg.Mode = "MOCK"
		}
		cfg.DatabaseURL, _ = cmd.Flags().GetString("db")

		ctx := context.Background()
		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		resp, err := a.Service.SubmitItinerary(ctx, req)
		if err != nil {
			return err
		}
		a.Queue.Wait()

		run, err := a.Service.GetRun(ctx, resp.RunID)
		if err != nil {
			return err
		}
		if run.Status != domain.RunStatusDone {
			return fmt.Errorf("run %s %s: %s", run.RunID, run.Status, run.Error)
		}
		return printJSON(cmd, run.Result)
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	submitCmd.Flags().BoolP("watch", "w", false, "follow progress after submitting")
	statusCmd.Flags().Bool("json", false, "print the full run as JSON")
	runCmd.Flags().Bool("mock", false, "use the mock knowledge source")
	runCmd.Flags().String("db", ":memory:", "database to record the run in")
}
