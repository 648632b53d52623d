package extract

import (
	"chatextract/internal/dom"
)

// Container is one located turn element. Index is its position in document
// order among the winning strategy's matches and is never re-sorted.
type Container struct {
	Node  dom.Node
	Index int
}

// Location is the result of a successful Locate.
type Location struct {
	// Strategy is the selector that produced the containers.
	Strategy string
	// Fallback is true when Strategy came from Config.Fallbacks.
	Fallback   bool
	Containers []Container
}

// Locate tries the configured container selector, then (unless the container
// was pinned explicitly) each fallback in order. The first strategy with at
// least one match wins. ok is false when every strategy matched nothing;
// that is a normal outcome, not an error.
//
// Every strategy keeps only outermost matches: substring class selectors
// like [class*='message'] also hit a container's own children, and a turn
// must never be emitted twice.
func Locate(root dom.Node, cfg Config) (loc Location, ok bool) {
	if cfg.Container != "" {
		if nodes := dom.Outermost(root.SelectAll(cfg.Container)); len(nodes) > 0 {
			return newLocation(cfg.Container, false, nodes), true
		}
	}
	if cfg.ExplicitContainer {
		return Location{}, false
	}
	for _, sel := range cfg.Fallbacks {
		if sel == cfg.Container {
			continue
		}
		nodes := dom.Outermost(root.SelectAll(sel))
		if len(nodes) > 0 {
			return newLocation(sel, true, nodes), true
		}
	}
	return Location{}, false
}

func newLocation(strategy string, fallback bool, nodes []dom.Node) Location {
	cs := make([]Container, len(nodes))
	for i, n := range nodes {
		cs[i] = Container{Node: n, Index: i}
	}
	return Location{Strategy: strategy, Fallback: fallback, Containers: cs}
}
