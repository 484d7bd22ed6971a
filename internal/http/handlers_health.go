package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const defaultReadinessTimeout = 2 * time.Second

// ReadinessCheck reports whether one dependency of job processing is reachable.
// Check may return a detail value (queue depth, for example) that is echoed in
// the readiness body.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) (any, error)
}

// HealthHandlers serves liveness and readiness endpoints.
type HealthHandlers struct {
	Checks  []ReadinessCheck
	Timeout time.Duration
	Logger  *slog.Logger
}

type healthBody struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

type checkResult struct {
	Status string `json:"status"`
	Detail any    `json:"detail,omitempty"`
}

// Live reports that the process is serving requests. It never touches a backing store.
func (h *HealthHandlers) Live(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	WriteJSON(w, http.StatusOK, healthBody{Status: "ok"})
}

// Ready runs every check under a shared deadline. Any failure turns the
// response into 503 so load balancers stop routing submissions here.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultReadinessTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	body := healthBody{Status: "ok", Checks: make(map[string]checkResult, len(h.Checks))}
	code := http.StatusOK
	for _, c := range h.Checks {
		detail, err := c.Check(ctx)
		if err != nil {
			// Error text can carry hosts and credentials; it only goes to the log.
			h.logger().WarnContext(ctx, "readiness check failed", "check", c.Name, "error", err)
			body.Checks[c.Name] = checkResult{Status: "unavailable"}
			body.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		body.Checks[c.Name] = checkResult{Status: "ok", Detail: detail}
	}
	WriteJSON(w, code, body)
}

func (h *HealthHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
