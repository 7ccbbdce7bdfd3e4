package reactloop

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// FinishCapabilityName is the reserved capability whose invocation is the
// sole termination signal for a run.
const FinishCapabilityName = "finish"

// ErrUnknownCapability is returned by Invoke when no capability is
// registered under the requested name.
var ErrUnknownCapability = errors.New("unknown capability")

// CapabilityFunc executes a capability with a named-argument map and
// returns a textual observation or a capability-specific error.
type CapabilityFunc func(args map[string]string) (string, error)

// Capability is a named, schema-declared operation the agent may invoke.
// Params is the declared parameter list; it is validated against decoded
// argument names before invocation rather than introspected at call time.
type Capability struct {
	Name        string
	Params      []string
	Description string
	Invoke      CapabilityFunc
}

// ArgumentError reports a mismatch between decoded argument names and a
// capability's declared parameter list. It is a dispatch error, surfaced
// to the model as a corrective entry rather than a tool observation.
type ArgumentError struct {
	Capability string
	Missing    []string
	Unknown    []string
}

func (e *ArgumentError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing argument(s): "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown argument(s): "+strings.Join(e.Unknown, ", "))
	}
	return fmt.Sprintf("invalid arguments for %s: %s", e.Capability, strings.Join(parts, "; "))
}

// Registry maps capability names to callables. Registration order is
// preserved so the catalog shown to the model renders deterministically.
type Registry struct {
	mu    sync.RWMutex
	caps  map[string]Capability
	order []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		caps: make(map[string]Capability),
	}
}

// Register inserts or overwrites capabilities by name. Overwriting keeps
// the original position in the catalog order.
func (r *Registry) Register(caps ...Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range caps {
		if _, exists := r.caps[c.Name]; !exists {
			r.order = append(r.order, c.Name)
		}
		r.caps[c.Name] = c
	}
}

// Lookup returns the capability registered under name.
func (r *Registry) Lookup(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[name]
	return c, ok
}

// Names returns all registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered capabilities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caps)
}

// Describe renders the capability catalog for the system block: every
// capability in registration order with its signature and description.
func (r *Registry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sb strings.Builder
	for _, name := range r.order {
		c := r.caps[name]
		fmt.Fprintf(&sb, "Function: %s(%s)\n%s\n\n", c.Name, strings.Join(c.Params, ", "), c.Description)
	}
	return sb.String()
}

// ValidateArgs checks decoded argument names against the capability's
// declared parameter list.
func (r *Registry) ValidateArgs(name string, args map[string]string) error {
	r.mu.RLock()
	c, ok := r.caps[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}

	declared := make(map[string]bool, len(c.Params))
	for _, p := range c.Params {
		declared[p] = true
	}

	var missing, unknown []string
	for _, p := range c.Params {
		if _, ok := args[p]; !ok {
			missing = append(missing, p)
		}
	}
	for a := range args {
		if !declared[a] {
			unknown = append(unknown, a)
		}
	}
	sort.Strings(unknown)

	if len(missing) > 0 || len(unknown) > 0 {
		return &ArgumentError{Capability: name, Missing: missing, Unknown: unknown}
	}
	return nil
}

// Invoke validates args and calls the capability. Validation failures are
// dispatch errors; anything returned by the capability itself passes
// through untranslated for the orchestrator to handle.
func (r *Registry) Invoke(name string, args map[string]string) (string, error) {
	if err := r.ValidateArgs(name, args); err != nil {
		return "", err
	}
	c, _ := r.Lookup(name)
	return c.Invoke(args)
}
