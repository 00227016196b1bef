// Package health provides health checking functionality for the RxWriter service.
package health

import (
	"math"
	"net/http"
	"time"

	"github.com/giygas/rxwriter/interfaces"
)

// degradedSessionLoad is the share of session capacity above which the service reports degraded
const degradedSessionLoad = 0.9

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	sessions  interfaces.SessionSweeper
	directory interfaces.DirectoryMonitor
	startTime time.Time
	now       func() time.Time
}

// NewHealthChecker creates a new health checker with injected dependencies.
// directory may be nil when the drug directory does not report its status.
func NewHealthChecker(sessions interfaces.SessionSweeper, directory interfaces.DirectoryMonitor, startTime time.Time) *HealthCheckerImpl {
	return &HealthCheckerImpl{
		sessions:  sessions,
		directory: directory,
		startTime: startTime,
		now:       time.Now,
	}
}

// HealthCheck returns HTTP-specific health data. Sessions are served from memory, so
// a failing drug directory only degrades the service; a full session store makes it unavailable.
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	sessions := h.sessions.Len()
	capacity := h.sessions.Capacity()

	var dpd interfaces.DirectoryStatus
	if h.directory != nil {
		dpd = h.directory.Status()
	}

	load := 0.0
	if capacity > 0 {
		load = float64(sessions) / float64(capacity)
	}

	switch {
	case capacity > 0 && sessions >= capacity:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dpd.Failing():
		status = "degraded"
		httpStatus = http.StatusOK

	case load >= degradedSessionLoad:
		status = "degraded"
		httpStatus = http.StatusOK

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	uptime := h.now().Sub(h.startTime)
	data = map[string]any{
		"sessions":         sessions,
		"session_capacity": capacity,
		"uptime_hours":     math.Round(uptime.Hours()*10) / 10,
		"dpd_last_success": formatTime(dpd.LastSuccess),
	}
	if dpd.Failing() {
		data["dpd_last_error"] = dpd.LastError
		data["dpd_last_failure"] = formatTime(dpd.LastFailure)
	}

	return status, data, httpStatus
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
