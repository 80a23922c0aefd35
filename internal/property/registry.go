package property

import "strings"

// Node is the minimal surface Registry needs from a configtree.Node so this
// package stays free of an import cycle with configtree.
type Node interface {
	Read(key string) (string, bool)
	Write(key, value string, comment string, isDefault bool)
}

// Registry is an ordered list of properties, looked up case-insensitively.
// Order is preserved for UI enumeration (SPEC_FULL.md §4.2).
type Registry struct {
	order []*Property
	byKey map[string]*Property
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*Property)}
}

// Register adds p to the registry. Registering the same name twice panics:
// registry entries are immutable after registration (SPEC_FULL.md §3).
func (r *Registry) Register(p *Property) {
	key := strings.ToLower(p.Name)
	if _, exists := r.byKey[key]; exists {
		panic("property: duplicate registration of " + p.Name)
	}
	r.byKey[key] = p
	r.order = append(r.order, p)
}

// Lookup finds a property by name, case-insensitively.
func (r *Registry) Lookup(name string) (*Property, bool) {
	p, ok := r.byKey[strings.ToLower(name)]
	return p, ok
}

// All returns properties in registration order, for UI enumeration.
func (r *Registry) All() []*Property {
	return append([]*Property(nil), r.order...)
}

// GetDefault returns the registered default for name, or "" if unknown.
func (r *Registry) GetDefault(name string) string {
	if p, ok := r.Lookup(name); ok {
		return p.Default
	}
	return ""
}

// Get reads name from node, falling back to the registered default when the
// node has no value (SPEC_FULL.md §3: "reading a missing property returns
// the registered default").
func (r *Registry) Get(node Node, name string) string {
	if v, ok := node.Read(name); ok && v != "" {
		if p, found := r.Lookup(name); found {
			return p.Canonicalize(v)
		}
		return v
	}
	return r.GetDefault(name)
}

// IsSet reports whether name has an explicit (non-default) value in node.
func (r *Registry) IsSet(node Node, name string) bool {
	v, ok := node.Read(name)
	return ok && v != ""
}

// SetDefaultProperty writes the canonical default for name into node,
// marking it as a default so the INI dumper can suppress it
// (SPEC_FULL.md §4.2, §6 "a leading '# ' on a property line marks it as
// default, not user-set").
func (r *Registry) SetDefaultProperty(node Node, name string, obligatory bool) {
	p, ok := r.Lookup(name)
	if !ok {
		return
	}
	node.Write(name, p.Default, firstCommentLine(p), true)
}

func firstCommentLine(p *Property) string {
	lines := p.CommentLines()
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

// Check validates value against the named property; unknown names are
// rejected by the caller (SPEC_FULL.md §4.4: "Unknown keys raise
// InvalidCall"), not by Check itself.
func (r *Registry) Check(name, value string) error {
	p, ok := r.Lookup(name)
	if !ok {
		return nil
	}
	return p.Check(value)
}
