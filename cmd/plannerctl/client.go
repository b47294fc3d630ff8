package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"gopkg.in/yaml.v3"

	"github.com/xiaot623/gogo/planner/internal/domain"
)

// client talks to a planner server.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) submit(ctx context.Context, req domain.ItineraryRequest) (*domain.SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var resp domain.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/v1/itineraries", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) run(ctx context.Context, runID string) (*domain.Run, error) {
	var run domain.Run
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(runID), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *client) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return json.Unmarshal(data, out)
}

// watch streams progress messages of a run to fn until the server closes
// the stream.
func (c *client) watch(ctx context.Context, runID string, fn func(domain.ProgressMessage)) error {
	u, err := url.Parse(c.baseURL + "/v1/runs/" + url.PathEscape(runID) + "/stream")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var msg domain.ProgressMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		fn(msg)
	}
}

// loadRequest reads an itinerary request from a YAML (or JSON) file. A
// file holding bare preferences is accepted too.
func loadRequest(path string) (domain.ItineraryRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ItineraryRequest{}, err
	}
	var req domain.ItineraryRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(req.Preferences.Cities) == 0 {
		var prefs domain.TripPreferences
		if err := yaml.Unmarshal(data, &prefs); err == nil && len(prefs.Cities) > 0 {
			req.Preferences = prefs
		}
	}
	return req, nil
}

func printProgress(w io.Writer, msg domain.ProgressMessage) {
	line := msg.Type
	if msg.Phase != "" {
		line += " " + msg.Phase
	}
	if msg.Task != "" {
		line += "/" + msg.Task
	}
	if msg.Percent > 0 {
		line += fmt.Sprintf(" %d%%", msg.Percent)
	}
	if msg.Message != "" {
		line += ": " + msg.Message
	}
	if msg.Error != "" {
		line += " error=" + msg.Error
	}
	fmt.Fprintln(w, line)
}
