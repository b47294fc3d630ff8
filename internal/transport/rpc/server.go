// Package rpc exposes the planner service over JSON-RPC for internal
// callers.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/xiaot623/gogo/planner/internal/domain"
	"github.com/xiaot623/gogo/planner/internal/jobqueue"
	"github.com/xiaot623/gogo/planner/internal/service"
)

// Server exposes internal RPC endpoints.
type Server struct {
	listener  net.Listener
	rpcServer *rpc.Server
	done      chan struct{}
}

// NewServer creates a new RPC server bound to the planner service.
func NewServer(svc *service.Service) (*Server, error) {
	rpcServer := rpc.NewServer()
	handler := &Handler{service: svc}
	if err := rpcServer.RegisterName("Planner", handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		done:      make(chan struct{}),
	}, nil
}

// Start begins accepting RPC connections on the given address.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.listener = ln
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			log.Printf("WARN: rpc accept error: %v", err)
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Shutdown stops accepting new RPC connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}

	if err := s.listener.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements planner RPC methods.
type Handler struct {
	service *service.Service
}

// RunRequest identifies a run.
type RunRequest struct {
	RunID string `json:"run_id"`
}

// JobRequest identifies a job.
type JobRequest struct {
	JobID string `json:"job_id"`
}

// DecisionsRequest pages through a run's decision log.
type DecisionsRequest struct {
	RunID   string `json:"run_id"`
	AfterID int64  `json:"after_id"`
	Limit   int    `json:"limit"`
}

// DecisionsResponse carries a page of decisions.
type DecisionsResponse struct {
	Decisions []domain.Decision `json:"decisions"`
}

// Submit queues an itinerary run.
func (h *Handler) Submit(req *domain.ItineraryRequest, resp *domain.SubmitResponse) error {
	if req == nil {
		return errors.New("itinerary request is required")
	}
	result, err := h.service.SubmitItinerary(context.Background(), *req)
	if err != nil {
		return err
	}
	*resp = *result
	return nil
}

// GetRun returns a run record.
func (h *Handler) GetRun(req *RunRequest, resp *domain.Run) error {
	if req == nil || req.RunID == "" {
		return errors.New("run_id is required")
	}
	run, err := h.service.GetRun(context.Background(), req.RunID)
	if err != nil {
		return err
	}
	*resp = *run
	return nil
}

// GetJob returns the queue status of a job.
func (h *Handler) GetJob(req *JobRequest, resp *jobqueue.Job) error {
	if req == nil || req.JobID == "" {
		return errors.New("job_id is required")
	}
	job, err := h.service.GetJobStatus(req.JobID)
	if err != nil {
		return err
	}
	*resp = job
	return nil
}

// GetDecisions returns decisions recorded after AfterID.
func (h *Handler) GetDecisions(req *DecisionsRequest, resp *DecisionsResponse) error {
	if req == nil || req.RunID == "" {
		return errors.New("run_id is required")
	}
	decisions, err := h.service.GetRunDecisions(context.Background(), req.RunID, req.AfterID, req.Limit)
	if err != nil {
		return err
	}
	resp.Decisions = decisions
	return nil
}
