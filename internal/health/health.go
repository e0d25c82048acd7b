// Package health serves the liveness and readiness probes for a
// receptionist instance.
//
//   - /healthz — liveness; a process that can answer HTTP is alive.
//   - /readyz  — readiness; 200 only while every registered [Checker]
//     passes. The load balancer stops routing inbound calls to an
//     instance whose store or providers are down, so a failing check
//     here is what takes a bad instance out of rotation.
//
// Responses are JSON: a top-level "status" ("ok" or "fail") and a
// "checks" map with one entry per named checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// probeTimeout caps each readiness check. Telephony load balancers mark an
// instance dead after a few seconds of probe silence, so a hung dependency
// must surface as a fast "fail", not a stalled response.
const probeTimeout = 3 * time.Second

// Checker is a named readiness probe. Check returns nil while the
// dependency can serve a call and an error describing the problem
// otherwise. It must respect context cancellation.
type Checker struct {
	// Name keys the check's entry in the JSON response, e.g. "database".
	Name string

	Check func(ctx context.Context) error
}

// report is the JSON body for both probe endpoints.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction; Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates the given checkers on each
// /readyz request. Checks run concurrently; the slowest one bounds the
// response time.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always answers 200. Liveness only asks whether the process is
// serving HTTP at all.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz answers 200 only when every checker passes, 503 otherwise. Each
// check gets a [probeTimeout] context derived from the request.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	type outcome struct {
		name string
		err  error
	}
	results := make([]outcome, len(h.checkers))

	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()
			results[i] = outcome{name: c.Name, err: c.Check(ctx)}
		}()
	}
	wg.Wait()

	res := report{
		Status: "ok",
		Checks: make(map[string]string, len(results)),
	}
	status := http.StatusOK
	for _, o := range results {
		if o.err != nil {
			res.Checks[o.name] = "fail: " + o.err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			res.Checks[o.name] = "ok"
		}
	}

	writeJSON(w, status, res)
}

// Register adds the probe routes to mux. Both are GET-only.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v with the given status code. On encoding failure it
// falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
