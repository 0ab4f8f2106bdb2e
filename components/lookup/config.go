package lookup

import (
	"net/http"
	"strconv"
)

const (
	defaultResultsPath = "data"
	defaultValueField  = "value"
	defaultLabelField  = "label"
)

// Shape places the list in the response body. ResultsPath is a dotted path
// of objects wrapping the list, empty for a bare array; ValueField and
// LabelField name the item fields. The names match model.RemoteConfig.
type Shape struct {
	ResultsPath string
	ValueField  string
	LabelField  string
}

// Config describes one option list endpoint.
type Config struct {
	Route        string
	SearchParam  string
	LimitParam   string
	DefaultLimit int
	MaxLimit     int
	// ListAll serves the first entries for an empty query instead of none.
	ListAll bool
	Filters []string
	Shape   Shape
	Guard   func(*http.Request) error
	Entries []Entry
}

// Option configures a Config.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Route:        "/api/options",
		SearchParam:  "q",
		LimitParam:   "limit",
		DefaultLimit: 50,
		MaxLimit:     200,
		Shape:        Shape{ResultsPath: defaultResultsPath},
	}
}

func newConfig(options ...Option) Config {
	cfg := defaultConfig()
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	defaults := defaultConfig()
	if cfg.Route == "" {
		cfg.Route = defaults.Route
	}
	if cfg.SearchParam == "" {
		cfg.SearchParam = defaults.SearchParam
	}
	if cfg.LimitParam == "" {
		cfg.LimitParam = defaults.LimitParam
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaults.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = defaults.MaxLimit
	}
	if cfg.Shape.ValueField == "" {
		cfg.Shape.ValueField = defaultValueField
	}
	if cfg.Shape.LabelField == "" {
		cfg.Shape.LabelField = defaultLabelField
	}
	cfg.Filters = append([]string(nil), cfg.Filters...)
	cfg.Entries = append([]Entry(nil), cfg.Entries...)
	return cfg
}

// limit parses a requested limit, applying the default and the maximum.
func (c Config) limit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n == 0 {
		n = c.DefaultLimit
	}
	if n < 0 {
		return 0
	}
	return min(n, c.MaxLimit)
}

func WithRoute(path string) Option {
	return func(c *Config) {
		c.Route = path
	}
}

func WithSearchParam(name string) Option {
	return func(c *Config) {
		c.SearchParam = name
	}
}

func WithLimitParam(name string) Option {
	return func(c *Config) {
		c.LimitParam = name
	}
}

// WithLimits sets the default and maximum number of results. Zero keeps the
// current value.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(c *Config) {
		if defaultLimit > 0 {
			c.DefaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			c.MaxLimit = maxLimit
		}
	}
}

func WithListAll(enabled bool) Option {
	return func(c *Config) {
		c.ListAll = enabled
	}
}

// WithFilters names the entry attributes requests may filter on.
func WithFilters(names ...string) Option {
	return func(c *Config) {
		c.Filters = append(c.Filters, names...)
	}
}

func WithShape(shape Shape) Option {
	return func(c *Config) {
		c.Shape = shape
	}
}

// WithGuard rejects requests for which guard returns an error. A *Denied
// error picks the status, anything else is 403.
func WithGuard(guard func(*http.Request) error) Option {
	return func(c *Config) {
		c.Guard = guard
	}
}

func WithEntries(entries []Entry) Option {
	return func(c *Config) {
		c.Entries = entries
	}
}
