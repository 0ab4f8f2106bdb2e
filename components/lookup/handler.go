package lookup

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Denied rejects a request from a guard with Status.
type Denied struct {
	Status int
	Reason string
}

func (e *Denied) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return http.StatusText(e.Status)
}

// NewHandler returns the option list handler for the given options.
func NewHandler(options ...Option) http.Handler {
	return &handler{cfg: newConfig(options...)}
}

type handler struct {
	cfg Config
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if h.cfg.Guard != nil {
		if err := h.cfg.Guard(r); err != nil {
			status := http.StatusForbidden
			var denied *Denied
			if errors.As(err, &denied) && denied.Status > 0 {
				status = denied.Status
			}
			http.Error(w, http.StatusText(status), status)
			return
		}
	}

	query := r.URL.Query()
	entries := filter(h.cfg.Entries, h.cfg.Filters, query)
	results := Search(entries, query.Get(h.cfg.SearchParam), h.cfg.limit(query.Get(h.cfg.LimitParam)), h.cfg.ListAll)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	_ = json.NewEncoder(w).Encode(h.cfg.Shape.body(results))
}

// body builds the response: items carry the entry attributes plus the value
// and label fields, nested under ResultsPath.
func (s Shape) body(entries []Entry) any {
	items := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		item := make(map[string]string, len(entry.Attrs)+2)
		for name, v := range entry.Attrs {
			item[name] = v
		}
		item[s.ValueField] = entry.Value
		item[s.LabelField] = entry.Label
		items = append(items, item)
	}
	var body any = items
	if s.ResultsPath == "" {
		return body
	}
	segments := strings.Split(s.ResultsPath, ".")
	for i := len(segments) - 1; i >= 0; i-- {
		body = map[string]any{segments[i]: body}
	}
	return body
}
