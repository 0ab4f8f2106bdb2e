// Package tmpl renders short inline pongo2 templates (validation messages,
// remote query parameters) with a compiled-template cache.
package tmpl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
)

// Context is the data a template renders against.
type Context = pongo2.Context

// Cache compiles each distinct source once. It is safe for concurrent use.
type Cache struct {
	mu        sync.RWMutex
	templates map[string]*pongo2.Template
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{templates: make(map[string]*pongo2.Template)}
}

// IsTemplate reports whether src contains pongo2 markup.
func IsTemplate(src string) bool {
	return strings.Contains(src, "{{") || strings.Contains(src, "{%")
}

// Render executes src against data. Sources without markup are returned as is.
func (c *Cache) Render(src string, data Context) (string, error) {
	if !IsTemplate(src) {
		return src, nil
	}
	tpl, err := c.get(src)
	if err != nil {
		return "", err
	}
	out, err := tpl.Execute(data)
	if err != nil {
		return "", fmt.Errorf("tmpl: execute %q: %w", src, err)
	}
	return out, nil
}

func (c *Cache) get(src string) (*pongo2.Template, error) {
	c.mu.RLock()
	if tpl, ok := c.templates[src]; ok {
		c.mu.RUnlock()
		return tpl, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if tpl, ok := c.templates[src]; ok {
		return tpl, nil
	}
	tpl, err := pongo2.FromString(src)
	if err != nil {
		return nil, fmt.Errorf("tmpl: compile %q: %w", src, err)
	}
	if c.templates == nil {
		c.templates = make(map[string]*pongo2.Template)
	}
	c.templates[src] = tpl
	return tpl, nil
}
