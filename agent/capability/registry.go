// Package capability holds the process-wide table of operations the
// concierge may invoke, keyed by name and gated by minimum role.
package capability

import (
	"fmt"
	"strings"
	"sync"

	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
)

type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]contractx.Capability
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]contractx.Capability, 16),
	}
}

func (r *Registry) Register(desc contractx.Capability) error {
	desc.Name = strings.TrimSpace(desc.Name)
	if desc.Name == "" {
		return fmt.Errorf("%w: capability name is empty", contractx.ErrValidation)
	}
	if !desc.MinRole.Valid() {
		return fmt.Errorf("%w: capability=%s has unknown min role %q", contractx.ErrValidation, desc.Name, desc.MinRole)
	}
	seen := make(map[string]struct{}, len(desc.Fields))
	for _, f := range desc.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: capability=%s has an unnamed field", contractx.ErrValidation, desc.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: capability=%s declares field %q twice", contractx.ErrValidation, desc.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
		switch f.Type {
		case contractx.FieldString, contractx.FieldNumber, contractx.FieldInteger, contractx.FieldBoolean:
		default:
			return fmt.Errorf("%w: capability=%s field=%s has unsupported type %q", contractx.ErrValidation, desc.Name, f.Name, f.Type)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: register %s", contractx.ErrRegistrySealed, desc.Name)
	}
	if _, exists := r.byName[desc.Name]; exists {
		return fmt.Errorf("%w: %s", contractx.ErrDuplicateCapability, desc.Name)
	}

	r.byName[desc.Name] = cloneCapability(desc)
	r.order = append(r.order, desc.Name)
	return nil
}

func (r *Registry) MustRegister(descs ...contractx.Capability) {
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

// Seal freezes the registry. Reads after Seal never observe a change.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Resolve returns the descriptor for name if role may invoke it.
// Unknown names are reported as forbidden.
func (r *Registry) Resolve(name string, role contractx.Role) (contractx.Capability, error) {
	r.mu.RLock()
	desc, ok := r.byName[strings.TrimSpace(name)]
	r.mu.RUnlock()

	if !ok {
		return contractx.Capability{}, fmt.Errorf("%w: %q", contractx.ErrUnknownCapability, name)
	}
	if !role.Allows(desc.MinRole) {
		return contractx.Capability{}, fmt.Errorf("%w: role=%s may not invoke %s", contractx.ErrForbidden, role, desc.Name)
	}
	return cloneCapability(desc), nil
}

// ListFor returns the capabilities visible to role in registration order.
func (r *Registry) ListFor(role contractx.Role) []contractx.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]contractx.Capability, 0, len(r.order))
	for _, name := range r.order {
		desc := r.byName[name]
		if role.Allows(desc.MinRole) {
			out = append(out, cloneCapability(desc))
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func cloneCapability(c contractx.Capability) contractx.Capability {
	out := c
	out.Fields = make([]contractx.Field, len(c.Fields))
	for i, f := range c.Fields {
		out.Fields[i] = f
		if f.Enum != nil {
			out.Fields[i].Enum = append([]string(nil), f.Enum...)
		}
	}
	return out
}
