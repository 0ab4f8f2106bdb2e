package lookup

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
)

// Entry is one selectable option. Attrs are served next to value and label.
type Entry struct {
	Value string            `json:"value"`
	Label string            `json:"label"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// LoadEntries reads one entry per line in the form `value|label|k=v,k=v`;
// label and attributes are optional and the label defaults to the value.
// Blank lines and lines starting with # are skipped, duplicate values keep
// their first occurrence. Entries are sorted by label.
func LoadEntries(r io.Reader) ([]Entry, error) {
	if r == nil {
		return nil, fmt.Errorf("lookup: missing reader")
	}
	scanner := bufio.NewScanner(r)
	var entries []Entry
	seen := map[string]struct{}{}
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "|", 3)
		entry := Entry{Value: strings.TrimSpace(parts[0])}
		if entry.Value == "" {
			continue
		}
		if len(parts) > 1 {
			entry.Label = strings.TrimSpace(parts[1])
		}
		if entry.Label == "" {
			entry.Label = entry.Value
		}
		if len(parts) > 2 {
			attrs, err := parseAttrs(parts[2])
			if err != nil {
				return nil, fmt.Errorf("lookup: line %d: %w", n, err)
			}
			entry.Attrs = attrs
		}
		if _, ok := seen[entry.Value]; ok {
			continue
		}
		seen[entry.Value] = struct{}{}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

func parseAttrs(raw string) (map[string]string, error) {
	attrs := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("attribute %q is not name=value", pair)
		}
		attrs[name] = strings.TrimSpace(value)
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	return attrs, nil
}

// EntriesFromValues builds entries whose label equals their value.
func EntriesFromValues(values ...string) []Entry {
	out := make([]Entry, 0, len(values))
	for _, v := range values {
		out = append(out, Entry{Value: v, Label: v})
	}
	sortEntries(out)
	return out
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Label < entries[j].Label })
}

// filter keeps the entries whose attributes equal, ignoring case, every
// filter present in query.
func filter(entries []Entry, names []string, query url.Values) []Entry {
	want := make(map[string]string, len(names))
	for _, name := range names {
		if v := strings.TrimSpace(query.Get(name)); v != "" {
			want[name] = v
		}
	}
	if len(want) == 0 {
		return entries
	}
	var out []Entry
	for _, entry := range entries {
		matched := true
		for name, v := range want {
			if !strings.EqualFold(entry.Attrs[name], v) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, entry)
		}
	}
	return out
}
