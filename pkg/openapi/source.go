package openapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// SourceKind enumerates where a document is read from.
type SourceKind string

const (
	SourceKindFile SourceKind = "file"
	SourceKindFS   SourceKind = "fs"
	SourceKindURL  SourceKind = "url"
)

// Source identifies where an OpenAPI document originated.
type Source interface {
	Kind() SourceKind
	Location() string
}

type fileSource struct {
	path string
}

func (s fileSource) Location() string { return s.path }
func (s fileSource) Kind() SourceKind { return SourceKindFile }

// SourceFromFile returns a Source pointing to a file path.
func SourceFromFile(path string) Source {
	return fileSource{path: filepath.Clean(path)}
}

type fsSource struct {
	name string
}

func (s fsSource) Location() string { return s.name }
func (s fsSource) Kind() SourceKind { return SourceKindFS }

// SourceFromFS returns a Source identifying a resource inside an fs.FS.
func SourceFromFS(name string) Source {
	return fsSource{name: name}
}

type urlSource struct {
	raw string
}

func (s urlSource) Location() string { return s.raw }
func (s urlSource) Kind() SourceKind { return SourceKindURL }

// SourceFromURL returns a Source for an HTTP(S) document.
func SourceFromURL(raw string) (Source, error) {
	if _, err := url.ParseRequestURI(raw); err != nil {
		return nil, fmt.Errorf("openapi: invalid URL %q: %w", raw, err)
	}
	return urlSource{raw: raw}, nil
}

// LoaderOption configures Load.
type LoaderOption func(*loaderOptions)

type loaderOptions struct {
	fsys    fs.FS
	client  *http.Client
	timeout time.Duration
}

// WithFileSystem sets the filesystem SourceFromFS names are read from.
func WithFileSystem(fsys fs.FS) LoaderOption {
	return func(o *loaderOptions) {
		o.fsys = fsys
	}
}

// WithHTTPClient enables URL sources using client.
func WithHTTPClient(client *http.Client) LoaderOption {
	return func(o *loaderOptions) {
		o.client = client
	}
}

// WithHTTPFallback enables URL sources using a default client with timeout.
func WithHTTPFallback(timeout time.Duration) LoaderOption {
	return func(o *loaderOptions) {
		if o.client == nil {
			o.client = &http.Client{Timeout: timeout}
		}
		o.timeout = timeout
	}
}

// Load reads the raw document behind src. URL sources are disabled unless an
// HTTP client was configured.
func Load(ctx context.Context, src Source, options ...LoaderOption) ([]byte, error) {
	if src == nil {
		return nil, errors.New("openapi: source is nil")
	}
	var cfg loaderOptions
	for _, opt := range options {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch src.Kind() {
	case SourceKindFile:
		return os.ReadFile(src.Location())
	case SourceKindFS:
		if cfg.fsys == nil {
			return nil, errors.New("openapi: filesystem is not configured")
		}
		return fs.ReadFile(cfg.fsys, src.Location())
	case SourceKindURL:
		if cfg.client == nil {
			return nil, errors.New("openapi: http support disabled")
		}
		return loadHTTP(ctx, cfg.client, src.Location(), cfg.timeout)
	default:
		return nil, errors.New("openapi: unsupported source kind")
	}
}

func loadHTTP(ctx context.Context, client *http.Client, location string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("openapi: request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openapi: fetch %s: %w", location, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openapi: fetch %s: unexpected status %d", location, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
