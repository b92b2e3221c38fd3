package task

import (
	"github.com/gammazero/toposort"

	"github.com/stagecraft/stagehand/pkg/cerr"
)

// depGraph indexes reverse dependencies: for each task id, the ids of
// tasks waiting on it. Every known task has an entry, possibly empty,
// so lookups never need an existence check.
type depGraph struct {
	dependents map[string][]string
}

func newDepGraph() *depGraph {
	return &depGraph{dependents: make(map[string][]string)}
}

func (g *depGraph) ensure(id string) {
	if _, ok := g.dependents[id]; !ok {
		g.dependents[id] = nil
	}
}

// addDependency records that dependent waits on dep.
func (g *depGraph) addDependency(dep, dependent string) {
	g.ensure(dep)
	g.dependents[dep] = append(g.dependents[dep], dependent)
}

func (g *depGraph) dependentsOf(id string) []string {
	return g.dependents[id]
}

func (g *depGraph) remove(id string) {
	delete(g.dependents, id)
	for dep, list := range g.dependents {
		for i, d := range list {
			if d == id {
				g.dependents[dep] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

// validateAcyclic topologically sorts the whole task set and rejects it
// when a cycle exists. Used when restoring a hand-editable task file;
// live creation cannot form cycles because dependencies must already
// exist.
func validateAcyclic(tasks map[string]*Task) error {
	var edges []toposort.Edge
	for id, t := range tasks {
		for _, dep := range t.Dependencies {
			edges = append(edges, toposort.Edge{dep, id})
		}
	}
	if len(edges) == 0 {
		return nil
	}
	if _, err := toposort.Toposort(edges); err != nil {
		return cerr.Errorf(cerr.InvalidArgument, err, "dependency cycle in task set")
	}
	return nil
}
