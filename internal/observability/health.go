package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultProbeTimeout = 3 * time.Second

// CheckFunc probes one dependency the report service needs, such as the
// report store or an LLM endpoint.
type CheckFunc func(ctx context.Context) error

// HealthChecker backs the /healthz and /readyz endpoints. Probes are
// registered by name during wiring and run concurrently on every
// readiness request, each under its own timeout.
type HealthChecker struct {
	logger  *slog.Logger
	started time.Time
	timeout time.Duration

	mu     sync.RWMutex
	probes map[string]CheckFunc
}

// HealthStatus is the payload served by the health endpoints.
type HealthStatus struct {
	Status        string                 `json:"status"` // "ok" or "degraded"
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Checks        map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult records one probe outcome.
type CheckResult struct {
	Status    string `json:"status"` // "ok" or "fail"
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// NewHealthChecker creates a checker with no probes registered.
func NewHealthChecker(logger *slog.Logger) *HealthChecker {
	return &HealthChecker{
		logger:  logger,
		started: time.Now(),
		timeout: defaultProbeTimeout,
		probes:  make(map[string]CheckFunc),
	}
}

// AddCheck registers a probe under a unique name. Re-registering a name
// replaces the earlier probe.
func (h *HealthChecker) AddCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = check
}

// CheckHealth reports liveness. The process answering the request is
// alive, so only uptime is reported.
func (h *HealthChecker) CheckHealth() HealthStatus {
	return HealthStatus{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
}

// CheckReady probes every registered dependency and degrades the
// aggregate status if any probe fails. Probes run concurrently so one
// slow dependency cannot serialize the readiness response.
func (h *HealthChecker) CheckReady(ctx context.Context) HealthStatus {
	h.mu.RLock()
	probes := make(map[string]CheckFunc, len(h.probes))
	for name, check := range h.probes {
		probes[name] = check
	}
	h.mu.RUnlock()

	status := HealthStatus{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	if len(probes) == 0 {
		return status
	}
	status.Checks = make(map[string]CheckResult, len(probes))

	var wg sync.WaitGroup
	var resultMu sync.Mutex
	for name, check := range probes {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			err := check(probeCtx)
			result := CheckResult{
				Status:    "ok",
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				result.Status = "fail"
				result.Message = err.Error()
				if h.logger != nil {
					h.logger.Warn("readiness probe failed",
						slog.String("probe", name),
						slog.String("error", err.Error()),
					)
				}
			}

			resultMu.Lock()
			if err != nil {
				status.Status = "degraded"
			}
			status.Checks[name] = result
			resultMu.Unlock()
		}(name, check)
	}
	wg.Wait()

	return status
}
