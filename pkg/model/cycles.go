package model

import "sort"

// Cycles reports effect dependency cycles found statically. Nodes are field
// ids and column references; an edge runs from every source of an effect to
// every field it may write, from every refreshOn field of a remote field to
// the key its fetched value lands on, and from a column to its row group
// (cell writes also trigger group-level effects). Each cycle is returned as
// the node path that closes it, e.g. ["a", "b", "a"]. A cycle is not a
// compile error: propagation is bounded at runtime.
func (s *Schema) Cycles() [][]string {
	edges := make(map[string]map[string]struct{})
	link := func(from, to string) {
		if edges[from] == nil {
			edges[from] = make(map[string]struct{})
		}
		edges[from][to] = struct{}{}
	}
	for _, effect := range s.effects {
		for _, src := range effect.Sources {
			for _, dst := range effect.Effected {
				link(src, dst)
			}
		}
	}
	for _, field := range s.Fields() {
		if field.Remote == nil {
			continue
		}
		target := field.Remote.Target
		if target == "" {
			target = field.ID
		}
		for _, dep := range field.Remote.RefreshOn {
			link(dep, target)
		}
	}
	for from := range edges {
		for to := range edges[from] {
			if key, err := ParseKey(to); err == nil && key.IsColumn() {
				link(to, key.Field)
			}
		}
	}

	nodes := make([]string, 0, len(edges))
	for id := range edges {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	permanent := make(map[string]bool)
	temporary := make(map[string]bool)
	var stack []string
	var cycles [][]string

	var visit func(id string)
	visit = func(id string) {
		if permanent[id] {
			return
		}
		if temporary[id] {
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i] == id {
					path := append([]string(nil), stack[i:]...)
					cycles = append(cycles, append(path, id))
					break
				}
			}
			return
		}
		temporary[id] = true
		stack = append(stack, id)

		next := make([]string, 0, len(edges[id]))
		for to := range edges[id] {
			next = append(next, to)
		}
		sort.Strings(next)
		for _, to := range next {
			visit(to)
		}

		stack = stack[:len(stack)-1]
		delete(temporary, id)
		permanent[id] = true
	}

	for _, id := range nodes {
		visit(id)
	}
	return cycles
}
