// Package generation provides the compare-on-resolve primitive shared by the
// effect scheduler, the remote dispatcher and on-change validation: every
// start of async work for a key takes a new token, and the work's result is
// applied only if its token is still the key's current one.
package generation

import (
	"strings"
	"sync"
)

// Token is a monotonically increasing sequence number. Tokens are drawn from
// one counter per Tracker, so a key's tokens only grow even across Forget.
// The zero token is never issued.
type Token uint64

// Tracker hands out tokens per key. It is safe for concurrent use.
type Tracker struct {
	mu   sync.Mutex
	seq  Token
	gens map[string]Token
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{gens: make(map[string]Token)}
}

// Next supersedes any outstanding work for key and returns the new token.
func (t *Tracker) Next(key string) Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gens == nil {
		t.gens = make(map[string]Token)
	}
	t.seq++
	t.gens[key] = t.seq
	return t.seq
}

// Current reports whether tok is still the latest token for key.
func (t *Tracker) Current(key string, tok Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tok != 0 && t.gens[key] == tok
}

// Latest returns the latest token issued for key, zero when none.
func (t *Tracker) Latest(key string) Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gens[key]
}

// Forget drops key so any outstanding token for it becomes stale.
func (t *Tracker) Forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.gens, key)
}

// ForgetPrefix drops every key starting with prefix.
func (t *Tracker) ForgetPrefix(prefix string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.gens {
		if strings.HasPrefix(key, prefix) {
			delete(t.gens, key)
		}
	}
}

// Len reports how many keys are tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.gens)
}
