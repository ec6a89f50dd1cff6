package xbrl

import (
	"fmt"
	"sort"
)

// Standard namespaces of an inline XBRL document
const (
	NamespaceXHTML   = "http://www.w3.org/1999/xhtml"
	NamespaceIX      = "http://www.xbrl.org/2013/inlineXBRL"
	NamespaceIXT     = "http://www.xbrl.org/inlineXBRL/transformation/2020-02-12"
	NamespaceXBRLI   = "http://www.xbrl.org/2003/instance"
	NamespaceLink    = "http://www.xbrl.org/2003/linkbase"
	NamespaceXLink   = "http://www.w3.org/1999/xlink"
	NamespaceISO4217 = "http://www.xbrl.org/2003/iso4217"
)

// standardNamespaces are resolvable without the taxonomy declaring them
var standardNamespaces = map[string]string{
	"ix":      NamespaceIX,
	"ixt":     NamespaceIXT,
	"xbrli":   NamespaceXBRLI,
	"link":    NamespaceLink,
	"xlink":   NamespaceXLink,
	"iso4217": NamespaceISO4217,
}

// structuralPrefixes appear in every document regardless of its facts
var structuralPrefixes = []string{"ix", "xbrli", "link", "xlink"}

// NamespaceRegistry holds the prefixes declared on the document root, each
// exactly once
type NamespaceRegistry struct {
	uris  map[string]string
	order []string
}

// NewNamespaceRegistry creates an empty registry
func NewNamespaceRegistry() *NamespaceRegistry {
	return &NamespaceRegistry{uris: make(map[string]string)}
}

// Declare registers prefix. Declaring the same binding twice is a no-op;
// rebinding a prefix to another URI fails.
func (r *NamespaceRegistry) Declare(prefix, uri string) error {
	if prefix == "" || uri == "" {
		return &StructuralError{Kind: KindUndeclaredNamespace, Detail: fmt.Sprintf("empty namespace binding %q=%q", prefix, uri)}
	}
	if existing, ok := r.uris[prefix]; ok {
		if existing != uri {
			return &StructuralError{
				Kind:   KindDuplicateNamespace,
				Detail: fmt.Sprintf("prefix %q bound to both %s and %s", prefix, existing, uri),
			}
		}
		return nil
	}
	r.uris[prefix] = uri
	r.order = append(r.order, prefix)
	return nil
}

// Declared reports whether prefix is declared. The xml prefix is always bound.
func (r *NamespaceRegistry) Declared(prefix string) bool {
	if prefix == "xml" {
		return true
	}
	_, ok := r.uris[prefix]
	return ok
}

// URI returns the namespace bound to prefix
func (r *NamespaceRegistry) URI(prefix string) (string, bool) {
	uri, ok := r.uris[prefix]
	return uri, ok
}

// Namespaces returns the declarations sorted by prefix
func (r *NamespaceRegistry) Namespaces() []Namespace {
	prefixes := append([]string(nil), r.order...)
	sort.Strings(prefixes)
	out := make([]Namespace, len(prefixes))
	for i, p := range prefixes {
		out[i] = Namespace{Prefix: p, URI: r.uris[p]}
	}
	return out
}

// RequireQName fails when the prefix of a qualified name is not declared
func (r *NamespaceRegistry) RequireQName(qname string) error {
	prefix := prefixOf(qname)
	if prefix == "" {
		return &StructuralError{Kind: KindUndeclaredNamespace, Concept: qname, Detail: "name has no namespace prefix"}
	}
	if !r.Declared(prefix) {
		return &StructuralError{Kind: KindUndeclaredNamespace, Concept: qname, Detail: fmt.Sprintf("prefix %q is not declared", prefix)}
	}
	return nil
}
