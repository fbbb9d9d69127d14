// Package server exposes a completion handler over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AlexGustafsson/relay/internal/completion"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxActivationSize limits the size of a single activation message.
const maxActivationSize = 8 << 20

// Server hosts a completion handler.
type Server struct {
	handler  *completion.Handler
	gatherer prometheus.Gatherer
	mux      *http.ServeMux
}

type Options struct {
	// Gatherer, if set, is served on /metrics.
	Gatherer prometheus.Gatherer
}

// WorkerMessage is an activation received over the worker socket. ID is
// echoed in the corresponding result.
type WorkerMessage struct {
	ID string `json:"id,omitempty"`
	completion.Activation
}

// WorkerResult is a result sent over the worker socket.
type WorkerResult struct {
	ID string `json:"id,omitempty"`
	completion.Result
}

func New(handler *completion.Handler, options *Options) *Server {
	if options == nil {
		options = &Options{}
	}

	s := &Server{
		handler:  handler,
		gatherer: options.Gatherer,
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /v1/completions", s.handleCompletion)
	s.mux.HandleFunc("GET /v1/worker", s.handleWorker)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		slog.Info("Server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errs:
		return err
	}
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var activation completion.Activation
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActivationSize))
	if err := decoder.Decode(&activation); err != nil {
		slog.Debug("Failed to decode activation", slog.Any("error", err))
		writeJSON(w, http.StatusBadRequest, completion.Failure(fmt.Errorf("invalid activation: %w", err)))
		return
	}

	result := s.handler.Handle(r.Context(), &activation)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleWorker(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("Failed to accept worker connection", slog.Any("error", err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxActivationSize)

	// In-flight invocations are cancelled before waiting for them
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	slog.Debug("Worker connected", slog.String("remote", r.RemoteAddr))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				slog.Debug("Worker disconnected", slog.String("remote", r.RemoteAddr))
			} else {
				slog.Debug("Failed to read from worker", slog.Any("error", err))
			}
			return
		}

		var message WorkerMessage
		if err := json.Unmarshal(data, &message); err != nil {
			result := WorkerResult{Result: completion.Failure(fmt.Errorf("invalid activation: %w", err))}
			if err := wsjson.Write(ctx, conn, result); err != nil {
				slog.Debug("Failed to write to worker", slog.Any("error", err))
				return
			}
			continue
		}

		results := s.handler.Go(ctx, &message.Activation)
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := WorkerResult{ID: message.ID, Result: <-results}
			if err := wsjson.Write(ctx, conn, result); err != nil {
				slog.Debug("Failed to write to worker", slog.Any("error", err))
			}
		}()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", slog.Any("error", err))
	}
}
