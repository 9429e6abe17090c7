package observability

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
)

const (
	StatusUp   = "up"
	StatusDown = "down"
)

// ComponentStatus is one dependency's entry in the readiness body.
type ComponentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ReadinessResponse is the readiness body. Orchestrators only read the status code.
type ReadinessResponse struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
}

func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": StatusUp})
}

// readiness runs every checker in parallel under the configured timeout and
// answers 503 if any of them fails.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	resp := ReadinessResponse{
		Status:     StatusUp,
		Components: make(map[string]ComponentStatus, len(s.checkers)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, checker := range s.checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				// WARN, not ERROR: the orchestrator keeps probing.
				s.logger.Warn("readiness check failed",
					slog.String("check", c.Name()),
					slog.String("error", err.Error()),
				)
				resp.Status = StatusDown
				resp.Components[c.Name()] = ComponentStatus{Status: StatusDown, Error: err.Error()}
				return
			}
			resp.Components[c.Name()] = ComponentStatus{Status: StatusUp}
		}(checker)
	}

	wg.Wait()

	code := http.StatusOK
	if resp.Status == StatusDown {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// The status code is already out; an encode failure only loses the body.
	_ = json.NewEncoder(w).Encode(body)
}
