package lookup

import (
	"sort"
	"strings"
)

// Search returns up to limit entries whose label or value contains query,
// ignoring case. Entries whose label or value starts with query come first;
// ties keep label order. An empty query matches nothing unless listAll is set,
// in which case the first entries are returned as given.
func Search(entries []Entry, query string, limit int, listAll bool) []Entry {
	out := []Entry{}
	if limit <= 0 {
		return out
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		if !listAll {
			return out
		}
		return append(out, entries[:min(limit, len(entries))]...)
	}

	type match struct {
		entry  Entry
		prefix bool
	}
	var matches []match
	for _, entry := range entries {
		label := strings.ToLower(entry.Label)
		value := strings.ToLower(entry.Value)
		if !strings.Contains(label, query) && !strings.Contains(value, query) {
			continue
		}
		matches = append(matches, match{
			entry:  entry,
			prefix: strings.HasPrefix(label, query) || strings.HasPrefix(value, query),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].prefix != matches[j].prefix {
			return matches[i].prefix
		}
		return matches[i].entry.Label < matches[j].entry.Label
	})

	for _, m := range matches[:min(limit, len(matches))] {
		out = append(out, m.entry)
	}
	return out
}
