package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type dispatchRequest struct {
	Room string `json:"room"`
}

type dispatchResponse struct {
	Room      string `json:"room"`
	SessionID string `json:"session_id"`
	TraceID   string `json:"trace_id"`
	Created   bool   `json:"created"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// Handler serves GET /healthz and POST /dispatch. middleware, when set,
// wraps the mux.
func (a *Agent) Handler(middleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("POST /dispatch", a.handleDispatch)
	if middleware != nil {
		return middleware(mux)
	}
	return mux
}

func (a *Agent) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if a.Draining() {
		status = "draining"
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: status, Sessions: a.Count()})
}

func (a *Agent) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	req.Room = strings.TrimSpace(req.Room)
	if req.Room == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "room is required"})
		return
	}
	sess, created, err := a.Dispatch(r.Context(), req.Room)
	switch {
	case errors.Is(err, ErrDraining):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, ErrSessionStarting):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case err != nil:
		a.log.Error("dispatch_failed", "room", req.Room, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "could not join room"})
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusAccepted
	}
	writeJSON(w, status, dispatchResponse{
		Room:      sess.Room,
		SessionID: sess.ID(),
		TraceID:   sess.TraceID,
		Created:   created,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve runs the HTTP server on addr until ctx is done.
func (a *Agent) Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           handler,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http_listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
