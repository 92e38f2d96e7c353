package stack

import "strings"

// Key is a namespaced configuration key. The engine persists keys as
// "namespace:name"; keys without a namespace belong to the program whose
// manifest declares the namespace.
type Key struct {
	// Namespace is the program namespace, empty for unqualified keys.
	Namespace string

	// Name is the key name within the namespace.
	Name string
}

// ParseKey splits a persisted key on its first colon. A key without a colon
// parses as unqualified.
func ParseKey(raw string) Key {
	if idx := strings.Index(raw, ":"); idx >= 0 {
		return Key{Namespace: raw[:idx], Name: raw[idx+1:]}
	}
	return Key{Name: raw}
}

// String renders the key back to its persisted form.
func (k Key) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return k.Namespace + ":" + k.Name
}

// Qualified returns the key namespaced under ns. Keys that already carry a
// namespace pass through untouched.
func (k Key) Qualified(ns string) Key {
	if k.Namespace != "" {
		return k
	}
	return Key{Namespace: ns, Name: k.Name}
}
