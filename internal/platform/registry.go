// internal/platform/registry.go
package platform

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/config"
	"github.com/xkilldash9x/postpilot/internal/session"
)

// Registry builds platform profiles by name.
type Registry struct {
	builders map[string]func() *Profile
}

// NewRegistry returns a registry with every built-in platform.
func NewRegistry() *Registry {
	return &Registry{builders: map[string]func() *Profile{
		"naver":   naverProfile,
		"tistory": tistoryProfile,
	}}
}

// Names lists the registered platforms in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for n := range r.builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get builds a fresh profile for name with the user's settings applied on
// top of the built-in data.
func (r *Registry) Get(name string, cfg config.PlatformConfig) (*Profile, error) {
	build, ok := r.builders[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, schemas.Errorf(schemas.KindPrecondition, "platform",
			"unknown platform %q (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	p := build()

	if cfg.BlogID != "" {
		p.BlogID = cfg.BlogID
	}
	if cfg.AuthFile != "" {
		p.AuthFile = cfg.AuthFile
	}
	if len(cfg.SessionMarkers) > 0 {
		p.Markers = make([]session.Marker, 0, len(cfg.SessionMarkers))
		for _, m := range cfg.SessionMarkers {
			p.Markers = append(p.Markers, session.Marker{Name: m.Name, Domain: m.Domain})
		}
	}
	if len(cfg.LoginURLPatterns) > 0 {
		p.LoginPatterns = append([]string(nil), cfg.LoginURLPatterns...)
	}
	if cfg.DefaultCategory != "" {
		p.DefaultCategory = cfg.DefaultCategory
	}
	return p, nil
}
