// Package graph maintains the formula dependency graph of one document.
//
// The ordered pair (s, t) means "s depends on t": s is a formula cell whose
// referenced set contains t. Dependents(s) is the set of t such that (s, t)
// is an edge; Dependees(s) is the set of u such that (u, s) is an edge. The
// two adjacency maps are kept as mutual inverses and the graph is acyclic
// after every successful mutation.
//
// The graph is not safe for concurrent use; the owning session guards it
// with its cells lock.
package graph

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// Dependency is a directed dependency graph over cell names with on-line
// cycle rejection. The zero value is not usable; construct with New.
type Dependency struct {
	dependents map[string]mapset.Set[string]
	dependees  map[string]mapset.Set[string]
	count      int
}

// New returns an empty dependency graph.
func New() *Dependency {
	return &Dependency{
		dependents: make(map[string]mapset.Set[string]),
		dependees:  make(map[string]mapset.Set[string]),
	}
}

// Size is the number of ordered pairs in the graph.
func (g *Dependency) Size() int {
	return g.count
}

// HasDependents reports whether Dependents(s) is non-empty.
func (g *Dependency) HasDependents(s string) bool {
	_, ok := g.dependents[s]
	return ok
}

// HasDependees reports whether Dependees(s) is non-empty.
func (g *Dependency) HasDependees(s string) bool {
	_, ok := g.dependees[s]
	return ok
}

// Dependents returns a copy of the set of cells s depends on. Unknown
// nodes yield an empty set.
func (g *Dependency) Dependents(s string) mapset.Set[string] {
	if row, ok := g.dependents[s]; ok {
		return row.Clone()
	}
	return mapset.NewThreadUnsafeSet[string]()
}

// Dependees returns a copy of the set of cells that depend on s. Unknown
// nodes yield an empty set.
func (g *Dependency) Dependees(s string) mapset.Set[string] {
	if row, ok := g.dependees[s]; ok {
		return row.Clone()
	}
	return mapset.NewThreadUnsafeSet[string]()
}

// Add inserts the pair (s, t). Inserting an existing pair is a no-op. If
// the insertion puts s on a directed cycle it is rolled back and Add
// reports false.
func (g *Dependency) Add(s, t string) bool {
	fwd := g.row(g.dependents, s).Add(t)
	rev := g.row(g.dependees, t).Add(s)
	if fwd && rev {
		g.count++
	}

	if g.inCycle(s) {
		g.Remove(s, t)
		return false
	}
	return true
}

// Remove deletes the pair (s, t) if present and prunes empty adjacency
// rows, so HasDependents/HasDependees stay equivalent to row membership.
func (g *Dependency) Remove(s, t string) {
	row, ok := g.dependents[s]
	if !ok || !row.Contains(t) {
		return
	}
	row.Remove(t)
	if row.IsEmpty() {
		delete(g.dependents, s)
	}

	if inv, ok := g.dependees[t]; ok {
		inv.Remove(s)
		if inv.IsEmpty() {
			delete(g.dependees, t)
		}
	}

	g.count--
}

// ReplaceDependents atomically replaces {t : (s,t) ∈ E} with refs. On a
// cycle the original dependents of s are fully restored and the result is
// false.
func (g *Dependency) ReplaceDependents(s string, refs mapset.Set[string]) bool {
	prev := g.Dependents(s)
	prev.Each(func(t string) bool {
		g.Remove(s, t)
		return false
	})

	if g.addAll(refs, func(t string) bool { return g.Add(s, t) }) {
		return true
	}

	refs.Each(func(t string) bool {
		g.Remove(s, t)
		return false
	})
	prev.Each(func(t string) bool {
		g.Add(s, t)
		return false
	})
	return false
}

// ReplaceDependees atomically replaces {u : (u,s) ∈ E} with refs, i.e.
// makes refs exactly the set of cells s is referenced by. On a cycle the
// original dependees of s are fully restored and the result is false.
func (g *Dependency) ReplaceDependees(s string, refs mapset.Set[string]) bool {
	prev := g.Dependees(s)
	prev.Each(func(u string) bool {
		g.Remove(u, s)
		return false
	})

	if g.addAll(refs, func(u string) bool { return g.Add(u, s) }) {
		return true
	}

	refs.Each(func(u string) bool {
		g.Remove(u, s)
		return false
	})
	// Restoring edges of a previously acyclic graph cannot fail.
	prev.Each(func(u string) bool {
		g.Add(u, s)
		return false
	})
	return false
}

func (g *Dependency) addAll(refs mapset.Set[string], add func(string) bool) bool {
	ok := true
	refs.Each(func(v string) bool {
		if !add(v) {
			ok = false
			return true
		}
		return false
	})
	return ok
}

// inCycle reports whether start participates in a directed cycle. The
// traversal follows dependents edges and succeeds only by revisiting
// start itself; the visited set is scoped to this single check.
func (g *Dependency) inCycle(start string) bool {
	visited := mapset.NewThreadUnsafeSet[string]()
	stack := []string{start}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		row, ok := g.dependents[n]
		if !ok {
			continue
		}

		found := false
		row.Each(func(t string) bool {
			if t == start {
				found = true
				return true
			}
			if visited.Add(t) {
				stack = append(stack, t)
			}
			return false
		})
		if found {
			return true
		}
	}
	return false
}

func (g *Dependency) row(m map[string]mapset.Set[string], key string) mapset.Set[string] {
	row, ok := m[key]
	if !ok {
		row = mapset.NewThreadUnsafeSet[string]()
		m[key] = row
	}
	return row
}
