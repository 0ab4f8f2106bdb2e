package lookup

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-formstate/pkg/model"
)

// Mux is the minimal interface required to register a net/http handler. It is
// satisfied by *http.ServeMux and chi.Router.
type Mux interface {
	Handle(pattern string, handler http.Handler)
}

// Component bundles a list's configuration with its handler and routing.
type Component struct {
	cfg Config
}

// New returns a component for the given options.
func New(options ...Option) *Component {
	return &Component{cfg: newConfig(options...)}
}

// Config returns a copy of the component configuration.
func (c *Component) Config() Config {
	return newConfig(func(cfg *Config) { *cfg = c.cfg })
}

// Handler returns the component's net/http handler.
func (c *Component) Handler() http.Handler {
	return &handler{cfg: c.cfg}
}

// RegisterRoutes registers the handler under basePath on mux and returns the
// mounted pattern.
func (c *Component) RegisterRoutes(mux Mux, basePath string) (string, error) {
	if mux == nil {
		return "", fmt.Errorf("lookup: missing mux")
	}
	pattern := MountPath(basePath, c.cfg.Route)
	mux.Handle(pattern, c.Handler())
	return pattern, nil
}

// RemoteConfig returns the endpoint config of a form field reading this list
// at url. Every filter is sent as a dynamic param rendered from the form field
// of the same name, and the field refreshes when one of them changes.
func (c *Component) RemoteConfig(url string) model.RemoteConfig {
	cfg := model.RemoteConfig{
		URL:         url,
		SearchParam: c.cfg.SearchParam,
		ResultsPath: c.cfg.Shape.ResultsPath,
		ValueField:  c.cfg.Shape.ValueField,
		LabelField:  c.cfg.Shape.LabelField,
	}
	if len(c.cfg.Filters) > 0 {
		cfg.DynamicParams = make(map[string]string, len(c.cfg.Filters))
		for _, name := range c.cfg.Filters {
			cfg.DynamicParams[name] = "{{ " + name + " }}"
			cfg.RefreshOn = append(cfg.RefreshOn, name)
		}
	}
	return cfg
}

// MountPath joins basePath and routePath into an absolute pattern.
func MountPath(basePath, routePath string) string {
	basePath = strings.Trim(strings.TrimSpace(basePath), "/")
	routePath = strings.Trim(strings.TrimSpace(routePath), "/")
	switch {
	case basePath == "":
		return "/" + routePath
	case routePath == "":
		return "/" + basePath + "/"
	default:
		return "/" + basePath + "/" + routePath
	}
}
