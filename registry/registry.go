// Package registry aggregates the capabilities advertised by connected tool
// providers into a single lookup surface: a flat tool namespace and an
// ordered resource table matched by URI.
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/medichat/mcp"
	"github.com/effective-security/xlog"
	"github.com/yosida95/uritemplate/v3"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/medichat", "registry")

// ErrNoMatchingResource is returned by Resolve when no registered resource
// or template matches the requested URI.
var ErrNoMatchingResource = errors.New("no matching resource")

// DuplicateCapabilityError reports a capability name or URI claimed by two
// providers. It is fatal at startup: an ambiguous namespace would route
// invocations nondeterministically.
type DuplicateCapabilityError struct {
	Kind   string // "tool" or "resource"
	Name   string
	First  string // session that registered it first
	Second string // session that attempted to register it again
}

func (e *DuplicateCapabilityError) Error() string {
	return fmt.Sprintf("duplicate %s %q: provided by both %q and %q", e.Kind, e.Name, e.First, e.Second)
}

// ToolDescriptor binds a tool definition to the session that provides it.
type ToolDescriptor struct {
	mcp.Tool
	SessionID string
}

// ResourceDescriptor binds a resource URI or URI template to the session
// that provides it.
type ResourceDescriptor struct {
	URI         string
	URITemplate string
	Name        string
	Description string
	MimeType    string
	SessionID   string

	tmpl *uritemplate.Template
}

// Catalog is the set of capabilities discovered from one session.
type Catalog struct {
	SessionID string
	Tools     []ToolDescriptor
	Resources []ResourceDescriptor
}

// Discover interrogates a ready session for its tools, resources and
// resource templates. Listing calls the session does not advertise support
// for are skipped.
func Discover(ctx context.Context, sess *mcp.Session) (*Catalog, error) {
	cat := &Catalog{SessionID: sess.ID()}
	caps := sess.Capabilities()

	if caps.Tools != nil {
		tools, err := sess.ListTools(ctx)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to discover tools from %q", sess.ID())
		}
		for _, t := range tools {
			cat.Tools = append(cat.Tools, ToolDescriptor{Tool: t, SessionID: sess.ID()})
		}
	}

	if caps.Resources != nil {
		resources, err := sess.ListResources(ctx)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to discover resources from %q", sess.ID())
		}
		for _, r := range resources {
			cat.Resources = append(cat.Resources, ResourceDescriptor{
				URI:         r.URI,
				Name:        r.Name,
				Description: r.Description,
				MimeType:    r.MimeType,
				SessionID:   sess.ID(),
			})
		}

		templates, err := sess.ListResourceTemplates(ctx)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to discover resource templates from %q", sess.ID())
		}
		for _, rt := range templates {
			tmpl, err := uritemplate.New(rt.URITemplate)
			if err != nil {
				return nil, errors.WithMessagef(err, "invalid resource template %q from %q", rt.URITemplate, sess.ID())
			}
			cat.Resources = append(cat.Resources, ResourceDescriptor{
				URITemplate: rt.URITemplate,
				Name:        rt.Name,
				Description: rt.Description,
				MimeType:    rt.MimeType,
				SessionID:   sess.ID(),
				tmpl:        tmpl,
			})
		}
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"session", sess.ID(),
		"tools", len(cat.Tools),
		"resources", len(cat.Resources),
	)
	return cat, nil
}

// Registry is the merged capability table. It is populated at startup and
// read-only afterwards, so lookups need no locking.
type Registry struct {
	tools     map[string]ToolDescriptor
	toolOrder []string
	resources []ResourceDescriptor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tools: make(map[string]ToolDescriptor),
	}
}

// Merge adds one session's catalog. A tool name or resource identifier
// already claimed by another session yields a DuplicateCapabilityError;
// merging stops at the first conflict.
func (r *Registry) Merge(cat *Catalog) error {
	for _, t := range cat.Tools {
		if prev, ok := r.tools[t.Name]; ok {
			return &DuplicateCapabilityError{
				Kind:   "tool",
				Name:   t.Name,
				First:  prev.SessionID,
				Second: t.SessionID,
			}
		}
		r.tools[t.Name] = t
		r.toolOrder = append(r.toolOrder, t.Name)
	}

	for _, res := range cat.Resources {
		key := res.URI
		if key == "" {
			key = res.URITemplate
		}
		for _, prev := range r.resources {
			prevKey := prev.URI
			if prevKey == "" {
				prevKey = prev.URITemplate
			}
			if prevKey == key {
				return &DuplicateCapabilityError{
					Kind:   "resource",
					Name:   key,
					First:  prev.SessionID,
					Second: res.SessionID,
				}
			}
		}
		r.resources = append(r.resources, res)
	}
	return nil
}

// Tool returns the descriptor for a tool name.
func (r *Registry) Tool(name string) (ToolDescriptor, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns all tool descriptors in registration order.
func (r *Registry) Tools() []ToolDescriptor {
	list := make([]ToolDescriptor, 0, len(r.toolOrder))
	for _, name := range r.toolOrder {
		list = append(list, r.tools[name])
	}
	return list
}

// Resources returns all resource descriptors in registration order.
func (r *Registry) Resources() []ResourceDescriptor {
	return append([]ResourceDescriptor{}, r.resources...)
}

// Resolve matches a URI against registered resources, exact URIs and
// templates alike, in registration order. The first match wins; later
// registrations never shadow earlier ones.
func (r *Registry) Resolve(uri string) (ResourceDescriptor, error) {
	for _, res := range r.resources {
		if res.tmpl != nil {
			if res.tmpl.Match(uri) != nil {
				return res, nil
			}
			continue
		}
		if res.URI == uri {
			return res, nil
		}
	}
	return ResourceDescriptor{}, errors.WithMessagef(ErrNoMatchingResource, "uri=%s", uri)
}

// SessionIDs returns the distinct sessions contributing capabilities,
// sorted for stable output.
func (r *Registry) SessionIDs() []string {
	seen := map[string]bool{}
	for _, name := range r.toolOrder {
		seen[r.tools[name].SessionID] = true
	}
	for _, res := range r.resources {
		seen[res.SessionID] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
