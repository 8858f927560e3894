// Package health reports whether wavecast can do its job: the external modem
// and transcoder binaries must resolve and their circuit breakers must not be
// open.
//
// The checks back two HTTP endpoints served beside /metrics:
//
//   - /healthz: liveness probe, always returns 200 OK.
//   - /readyz: readiness probe, returns 200 only when all registered
//     [Checker] functions pass.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map containing the result of each named checker. The CLI's
// check command runs the same checkers through [Handler.Run].
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"github.com/MrWong99/wavecast/internal/resilience"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short, human-readable label for this check (e.g.
	// "ggwave-to-file"). It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// Binary returns a checker that passes when path resolves to an executable,
// either directly or through PATH.
func Binary(path string) Checker {
	return Checker{
		Name: path,
		Check: func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := exec.LookPath(path); err != nil {
				return err
			}
			return nil
		},
	}
}

// Breaker returns a checker that fails while cb is open.
func Breaker(cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name: "breaker:" + cb.Name(),
		Check: func(context.Context) error {
			if s := cb.State(); s == resilience.StateOpen {
				return fmt.Errorf("circuit %s", s)
			}
			return nil
		},
	}
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz endpoints. It is safe for concurrent
// use; the checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request. The checkers are evaluated sequentially in the order provided.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Run evaluates every checker and returns the per-check results ("ok" or
// "fail: <reason>") and whether all of them passed. Each checker is given a
// context with a [checkTimeout] deadline derived from ctx.
func (h *Handler) Run(ctx context.Context) (map[string]string, bool) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true
	for _, c := range h.checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(cctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}
	return checks, allOK
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks, ok := h.Run(r.Context())
	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !ok {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
