package engine

import (
	"log/slog"
	"net/http"

	"github.com/goliatone/go-formstate/internal/ctxlog"
	"github.com/goliatone/go-formstate/pkg/model"
	"github.com/goliatone/go-formstate/pkg/remote"
	"github.com/goliatone/go-formstate/pkg/submit"
)

// Option configures a Form.
type Option func(*config)

type config struct {
	logger           *slog.Logger
	initial          map[string]any
	maxDepth         int
	handlers         map[string]model.EffectFunc
	validators       map[string]model.Validator
	messages         map[string]string
	concurrency      int
	fetcher          remote.Fetcher
	client           *http.Client
	submitHandler    submit.Handler
	transformers     []submit.Transformer
	sanitize         bool
	validateOnChange bool
	onError          func(error)
	rowKey           func() string
}

func defaultConfig() config {
	return config{
		logger:           ctxlog.Discard(),
		sanitize:         true,
		validateOnChange: true,
	}
}

// WithLogger sets the logger every component logs through.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = ctxlog.OrDiscard(logger)
	}
}

// WithInitialValues overrides field defaults at construction.
func WithInitialValues(values map[string]any) Option {
	return func(c *config) {
		c.initial = values
	}
}

// WithMaxEffectDepth bounds effect propagation. See effects.DefaultMaxDepth.
func WithMaxEffectDepth(depth int) Option {
	return func(c *config) {
		c.maxDepth = depth
	}
}

// WithEffectHandlers registers named effect handlers referenced by
// EffectDescriptor.Handler.
func WithEffectHandlers(handlers map[string]model.EffectFunc) Option {
	return func(c *config) {
		if c.handlers == nil {
			c.handlers = make(map[string]model.EffectFunc, len(handlers))
		}
		for name, fn := range handlers {
			c.handlers[name] = fn
		}
	}
}

// WithValidators registers named custom validators referenced by custom rules.
func WithValidators(validators map[string]model.Validator) Option {
	return func(c *config) {
		if c.validators == nil {
			c.validators = make(map[string]model.Validator, len(validators))
		}
		for name, fn := range validators {
			c.validators[name] = fn
		}
	}
}

// WithMessages overrides the default validation message templates.
func WithMessages(messages map[string]string) Option {
	return func(c *config) {
		c.messages = messages
	}
}

// WithValidationConcurrency bounds how many keys ValidateAll runs at once.
func WithValidationConcurrency(limit int) Option {
	return func(c *config) {
		c.concurrency = limit
	}
}

// WithFetcher replaces the HTTP fetcher used for remote fields.
func WithFetcher(fetcher remote.Fetcher) Option {
	return func(c *config) {
		c.fetcher = fetcher
	}
}

// WithHTTPClient sets the client of the default HTTP fetcher.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.client = client
	}
}

// WithSubmitHandler sets the host callback invoked by a valid Submit.
func WithSubmitHandler(handler submit.Handler) Option {
	return func(c *config) {
		c.submitHandler = handler
	}
}

// WithSubmitTransformers appends snapshot transformers run before the submit
// handler.
func WithSubmitTransformers(transformers ...submit.Transformer) Option {
	return func(c *config) {
		c.transformers = append(c.transformers, transformers...)
	}
}

// WithSanitize toggles stripping markup from fields marked Sanitize on submit.
// It is on by default.
func WithSanitize(enabled bool) Option {
	return func(c *config) {
		c.sanitize = enabled
	}
}

// WithValidateOnChange toggles revalidating a key after every write. It is on
// by default.
func WithValidateOnChange(enabled bool) Option {
	return func(c *config) {
		c.validateOnChange = enabled
	}
}

// WithErrorHandler receives structural errors such as effect cycles and
// undeclared effect writes as they happen.
func WithErrorHandler(fn func(error)) Option {
	return func(c *config) {
		c.onError = fn
	}
}

// WithRowKeyFunc replaces the UUID row key generator.
func WithRowKeyFunc(fn func() string) Option {
	return func(c *config) {
		c.rowKey = fn
	}
}
