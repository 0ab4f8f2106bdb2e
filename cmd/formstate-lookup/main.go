// Command formstate-lookup serves option lists for remote form fields. Every
// file argument becomes a route under /api/options named after the file, so
// cities.txt is searchable at /api/options/cities?q=lis. Lines carry
// `value|label|name=value,...`; attributes named by -filters narrow a list
// from the query string, e.g. /api/options/cities?country=PT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/goliatone/go-formstate/components/lookup"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	base := flag.String("base", "/api/options", "base path for the option routes")
	top := flag.Bool("top", false, "return the first entries when the query is empty")
	maxLimit := flag.Int("max-limit", 200, "maximum results per request")
	filters := flag.String("filters", "", "comma separated entry attributes requests may filter on")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if flag.NArg() == 0 {
		logger.Error("no option files given")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router, err := newRouter(logger, *base, flag.Args(),
		lookup.WithListAll(*top),
		lookup.WithLimits(0, *maxLimit),
		lookup.WithFilters(splitList(*filters)...),
	)
	if err != nil {
		logger.Error("configure routes", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdown)
	}()

	logger.Info("starting lookup server", "addr", *addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newRouter(logger *slog.Logger, base string, files []string, options ...lookup.Option) (chi.Router, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	for _, path := range files {
		entries, err := readEntries(path)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		opts := append([]lookup.Option{lookup.WithEntries(entries), lookup.WithRoute(name)}, options...)
		component := lookup.New(opts...)
		pattern, err := component.RegisterRoutes(r, base)
		if err != nil {
			return nil, err
		}
		logger.Info("registered option list", "route", pattern, "entries", len(entries))
	}
	return r, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func readEntries(path string) ([]lookup.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	entries, err := lookup.LoadEntries(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return entries, nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
