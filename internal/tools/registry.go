package tools

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

type entry struct {
	tool       Tool
	descriptor Descriptor
	patterns   map[string]*regexp.Regexp
}

// Registry holds the closed set of tools.
type Registry struct {
	mu     sync.RWMutex
	sealed bool
	tools  map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// Register adds a tool. It fails on duplicates, malformed descriptors and
// after Seal.
func (r *Registry) Register(tool Tool) error {
	desc := tool.Descriptor()
	if !toolNamePattern.MatchString(desc.Name) {
		return fmt.Errorf("%w: name %q", ErrInvalidTool, desc.Name)
	}

	patterns := make(map[string]*regexp.Regexp)
	for _, p := range desc.Params {
		if p.Name == "" {
			return fmt.Errorf("%w: %s has an unnamed parameter", ErrInvalidTool, desc.Name)
		}
		if p.Pattern == "" {
			continue
		}
		re, err := regexp.Compile("^(?:" + p.Pattern + ")$")
		if err != nil {
			return fmt.Errorf("%w: %s.%s pattern: %v", ErrInvalidTool, desc.Name, p.Name, err)
		}
		patterns[p.Name] = re
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrRegistrySealed
	}
	if _, exists := r.tools[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, desc.Name)
	}
	r.tools[desc.Name] = entry{tool: tool, descriptor: desc, patterns: patterns}
	return nil
}

// MustRegister is Register that panics, for static wiring at startup.
func (r *Registry) MustRegister(tools ...Tool) *Registry {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// List returns every descriptor sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.descriptor)
	}
	sortDescriptors(out)
	return out
}

// Resolve returns the tool registered under name.
func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.tool, ok
}

// Describe returns the descriptor registered under name.
func (r *Registry) Describe(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.descriptor, ok
}

// Validate checks args against the tool's parameter schema. Required
// parameters must be present and non-empty; any parameter with a pattern
// must match it when present. Names are reported in declaration order.
func (r *Registry) Validate(name string, args map[string]string) Validation {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Validation{}
	}

	var v Validation
	for _, p := range e.descriptor.Params {
		value := strings.TrimSpace(args[p.Name])
		if value == "" {
			if p.Required {
				v.Missing = append(v.Missing, p.Name)
			}
			continue
		}
		if re := e.patterns[p.Name]; re != nil && !re.MatchString(value) {
			v.Invalid = append(v.Invalid, p.Name)
		}
	}
	return v
}
