package app

import (
	"context"
	"os/exec"
	"sync"
)

type HealthStatus string

const (
	HealthStatusReady    HealthStatus = "ready"
	HealthStatusDisabled HealthStatus = "disabled"
	HealthStatusError    HealthStatus = "error"
)

// ComponentHealth is one probe result reported by /health.
type ComponentHealth struct {
	Name    string         `json:"name"`
	Status  HealthStatus   `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type HealthProbe interface {
	Check(ctx context.Context) ComponentHealth
}

// HealthChecker aggregates health probes for all components
type HealthChecker struct {
	probes []HealthProbe
	mu     sync.RWMutex
}

func NewHealthChecker(probes ...HealthProbe) *HealthChecker {
	return &HealthChecker{probes: append([]HealthProbe(nil), probes...)}
}

// RegisterProbe adds a health probe
func (h *HealthChecker) RegisterProbe(probe HealthProbe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, probe)
}

// CheckAll returns health status for all components, in registration order.
func (h *HealthChecker) CheckAll(ctx context.Context) []ComponentHealth {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	results := make([]ComponentHealth, 0, len(h.probes))
	for _, probe := range h.probes {
		results = append(results, probe.Check(ctx))
	}
	return results
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// BinaryProbe reports whether an executable resolves on PATH.
type BinaryProbe struct {
	name    string
	binary  string
	enabled bool
}

// NewBinaryProbe checks binary under the component name. A disabled probe
// reports HealthStatusDisabled without looking anything up.
func NewBinaryProbe(name, binary string, enabled bool) *BinaryProbe {
	return &BinaryProbe{name: name, binary: binary, enabled: enabled}
}

func (p *BinaryProbe) Check(context.Context) ComponentHealth {
	if !p.enabled {
		return ComponentHealth{
			Name:    p.name,
			Status:  HealthStatusDisabled,
			Message: p.name + " is not configured",
		}
	}
	path, err := lookPath(p.binary)
	if err != nil {
		return ComponentHealth{
			Name:    p.name,
			Status:  HealthStatusError,
			Message: err.Error(),
			Details: map[string]any{"binary": p.binary},
		}
	}
	return ComponentHealth{
		Name:    p.name,
		Status:  HealthStatusReady,
		Details: map[string]any{"path": path},
	}
}

// SessionProbe reports the state of the active session slot.
type SessionProbe struct {
	registry *SessionRegistry
}

func NewSessionProbe(registry *SessionRegistry) *SessionProbe {
	return &SessionProbe{registry: registry}
}

func (p *SessionProbe) Check(context.Context) ComponentHealth {
	health := ComponentHealth{Name: "session", Status: HealthStatusReady}
	session := p.registry.Active()
	if session == nil {
		health.Message = "idle"
		return health
	}
	health.Details = map[string]any{
		"session_id": session.ID(),
		"status":     session.Status(),
		"events":     session.Len(),
	}
	return health
}
