package capability

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/normanking/archon/internal/llm"
)

// ResponseFormat selects the answer rendering the caller wants. Lightweight
// UI formats restrict which capabilities the decision stage may see.
type ResponseFormat string

const (
	FormatText      ResponseFormat = "text"
	FormatVoice     ResponseFormat = "voice"
	FormatDashboard ResponseFormat = "dashboard"
	FormatWidget    ResponseFormat = "widget"
)

// lightweight formats only expose home/device control
var lightweightFormats = map[ResponseFormat]bool{
	FormatDashboard: true,
	FormatWidget:    true,
}

// Registry holds the capability catalog. It is populated at startup and
// read-only afterwards, so it is shared across concurrent turns without
// locking.
type Registry struct {
	byName map[string]*Descriptor
	names  []string // sorted, for deterministic schema order
}

// NewRegistry builds a registry from descriptors. Duplicate names are an
// error; a registry with a shadowed capability is worse than no registry.
func NewRegistry(descriptors ...*Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("capability with empty name")
		}
		if d.Invoke == nil {
			return nil, fmt.Errorf("capability %s has no implementation", d.Name)
		}
		if _, exists := r.byName[d.Name]; exists {
			return nil, fmt.Errorf("duplicate capability name: %s", d.Name)
		}
		r.byName[d.Name] = d
		r.names = append(r.names, d.Name)
	}
	sort.Strings(r.names)
	log.Info().Int("capabilities", len(r.names)).Msg("capability registry ready")
	return r, nil
}

// Lookup returns the descriptor for a name, or nil if unknown.
func (r *Registry) Lookup(name string) *Descriptor {
	return r.byName[name]
}

// Names returns the registered capability names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Invoke executes a capability by name. It fails closed: an unknown name or
// an implementation error becomes a Result with Success=false, never a
// returned error, so one bad name cannot abort a batch.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]string) Result {
	d := r.byName[name]
	if d == nil {
		log.Warn().Str("capability", name).Msg("unknown capability requested")
		return Result{Name: name, Success: false, Error: fmt.Sprintf("unknown capability: %s", name)}
	}

	payload, err := d.Invoke(ctx, args)
	if err != nil {
		log.Warn().Str("capability", name).Err(err).Msg("capability failed")
		return Result{Name: name, Success: false, Error: err.Error()}
	}
	return Result{Name: name, Success: true, Payload: payload}
}

// visible returns the descriptors exposed for a response format, in sorted
// name order.
func (r *Registry) visible(format ResponseFormat) []*Descriptor {
	restricted := lightweightFormats[format]
	out := make([]*Descriptor, 0, len(r.names))
	for _, name := range r.names {
		d := r.byName[name]
		if restricted && d.Domain != "home" {
			continue
		}
		out = append(out, d)
	}
	return out
}

// SchemasFor renders the calling-convention schemas for the capabilities
// visible under the given response format, in the dialect of the model's
// provider family. One metadata source, three renderings.
func (r *Registry) SchemasFor(model string, format ResponseFormat) ([][]byte, error) {
	descriptors := r.visible(format)
	kind := llm.KindForModel(model)

	out := make([][]byte, 0, len(descriptors))
	for _, d := range descriptors {
		var (
			blob []byte
			err  error
		)
		switch kind {
		case llm.KindOpenAI:
			blob, err = renderTypedFunction(d)
		case llm.KindGemini:
			blob, err = renderAnnotatedDeclaration(d)
		default:
			blob, err = renderMinimal(d)
		}
		if err != nil {
			return nil, fmt.Errorf("render schema for %s: %w", d.Name, err)
		}
		out = append(out, blob)
	}
	return out, nil
}

// Catalog renders a human-readable capability listing for the decision
// prompt: name, description, and parameter lines.
func (r *Registry) Catalog(format ResponseFormat) []CatalogEntry {
	descriptors := r.visible(format)
	out := make([]CatalogEntry, 0, len(descriptors))
	for _, d := range descriptors {
		entry := CatalogEntry{Name: d.Name, Description: d.Description}
		for _, p := range d.Params {
			entry.Params = append(entry.Params, CatalogParam{
				Name:        p.Name,
				Type:        p.Type,
				Description: p.Description,
				Required:    p.Required,
			})
		}
		out = append(out, entry)
	}
	return out
}

// CatalogEntry is one capability as shown to the decision prompt.
type CatalogEntry struct {
	Name        string
	Description string
	Params      []CatalogParam
}

// CatalogParam is one parameter line in a catalog entry.
type CatalogParam struct {
	Name        string
	Type        string
	Description string
	Required    bool
}
