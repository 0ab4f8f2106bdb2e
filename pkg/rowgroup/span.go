package rowgroup

import "github.com/goliatone/go-formstate/pkg/model"

// ResolveSpan picks the span config that applies to the row at index:
//
//  1. the first config listing index in RowIndexes;
//  2. a RestAll config, when index lies beyond every explicit index;
//  3. otherwise the last declared config.
//
// ok is false only when configs is empty or index is negative.
func ResolveSpan(configs []model.RowSpanConfig, index int) (model.RowSpanConfig, bool) {
	if len(configs) == 0 || index < 0 {
		return model.RowSpanConfig{}, false
	}
	maxExplicit := -1
	rest := -1
	for i, cfg := range configs {
		for _, idx := range cfg.RowIndexes {
			if idx == index {
				return cfg, true
			}
			if idx > maxExplicit {
				maxExplicit = idx
			}
		}
		if cfg.RestAll && rest < 0 {
			rest = i
		}
	}
	if rest >= 0 && index > maxExplicit {
		return configs[rest], true
	}
	return configs[len(configs)-1], true
}

// CellSpans expands cfg into the visual width of every column of a row with
// columns columns: a span's first column gets its width, the columns it
// covers get zero and everything else one.
func CellSpans(cfg model.RowSpanConfig, columns int) []int {
	if columns <= 0 {
		return nil
	}
	out := make([]int, columns)
	for i := range out {
		out[i] = 1
	}
	for _, span := range cfg.Spans {
		if span.Column < 0 || span.Column >= columns || span.Width < 1 {
			continue
		}
		out[span.Column] = span.Width
		for c := span.Column + 1; c < span.Column+span.Width && c < columns; c++ {
			out[c] = 0
		}
	}
	return out
}
