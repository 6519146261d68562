package app

import (
	"fmt"
	"strings"

	"sandboxagent/internal/agent/domain"
)

// FilterDecision reports whether an event should reach external subscribers.
type FilterDecision func(domain.Event) bool

// FilterConfig extends the built-in suppression rules.
type FilterConfig struct {
	SuppressKinds []string
	ReadOnlyTools []string
}

var (
	defaultSuppressedKinds = []domain.EventKind{domain.KindFileRead, domain.KindToolEnd}
	defaultReadOnlyTools   = []string{"Read", "Glob"}
)

// FilterPolicy decides per event kind what subscribers see. It has an entry
// for every kind and never mutates the session log.
type FilterPolicy struct {
	rules map[domain.EventKind]FilterDecision
}

func forward(domain.Event) bool  { return true }
func suppress(domain.Event) bool { return false }

// DefaultFilterPolicy hides file reads, successful tool ends and starts of
// read-only tools.
func DefaultFilterPolicy() *FilterPolicy {
	policy, _ := NewFilterPolicy(FilterConfig{})
	return policy
}

// NewFilterPolicy builds a policy from the defaults plus cfg.
func NewFilterPolicy(cfg FilterConfig) (*FilterPolicy, error) {
	suppressed := make(map[domain.EventKind]bool)
	for _, kind := range defaultSuppressedKinds {
		suppressed[kind] = true
	}
	for _, name := range cfg.SuppressKinds {
		kind := domain.EventKind(strings.TrimSpace(name))
		if !kind.Valid() {
			return nil, fmt.Errorf("filter: unknown event kind %q", name)
		}
		suppressed[kind] = true
	}

	readOnly := make(map[string]bool)
	for _, tool := range append(append([]string(nil), defaultReadOnlyTools...), cfg.ReadOnlyTools...) {
		if tool = strings.TrimSpace(tool); tool != "" {
			readOnly[tool] = true
		}
	}

	rules := make(map[domain.EventKind]FilterDecision, len(domain.AllEventKinds()))
	for _, kind := range domain.AllEventKinds() {
		rules[kind] = forward
	}
	if !suppressed[domain.KindToolStart] {
		rules[domain.KindToolStart] = func(e domain.Event) bool {
			return !readOnly[e.Data().String("tool")]
		}
	}
	for kind := range suppressed {
		rules[kind] = suppress
	}
	return &FilterPolicy{rules: rules}, nil
}

// Forward reports whether event should be delivered. Kinds without a rule
// are forwarded.
func (p *FilterPolicy) Forward(event domain.Event) bool {
	if p == nil {
		return true
	}
	rule, ok := p.rules[event.Kind()]
	if !ok {
		return true
	}
	return rule(event)
}

// Covers reports whether kind has an explicit rule.
func (p *FilterPolicy) Covers(kind domain.EventKind) bool {
	_, ok := p.rules[kind]
	return ok
}
