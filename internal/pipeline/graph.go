package pipeline

import (
	"sort"

	"github.com/amin-amout/agentpro/internal/stage"
)

// Node couples a resolved stage with its graph metadata.
type Node struct {
	Name       string
	Stage      stage.Stage
	DependsOn  []string
	Dependents []string
}

// Graph is the validated dependency graph over a set of stages. Building
// it resolves every stage from the registry, checks that all dependency
// references land on stages in the set, and computes a topological order.
// All of this happens before any stage executes.
type Graph struct {
	nodes map[string]*Node
	order []string
}

// BuildGraph resolves the named stages and validates the dependency
// relation. Cycles and dangling references are graph errors.
func BuildGraph(registry *stage.Registry, names []string, deps stage.Deps) (*Graph, error) {
	if len(names) == 0 {
		return nil, &GraphError{Reason: "at least one stage is required"}
	}
	nodes := make(map[string]*Node, len(names))
	for _, name := range names {
		if _, dup := nodes[name]; dup {
			return nil, &GraphError{Reason: "duplicate stage", Stages: []string{name}}
		}
		resolved, err := registry.Resolve(name, deps)
		if err != nil {
			return nil, &GraphError{Reason: err.Error(), Stages: []string{name}}
		}
		descriptor := resolved.Descriptor()
		nodes[name] = &Node{
			Name:      name,
			Stage:     resolved,
			DependsOn: append([]string{}, descriptor.DependsOn...),
		}
	}
	for _, node := range nodes {
		for _, dep := range node.DependsOn {
			target, ok := nodes[dep]
			if !ok {
				return nil, &GraphError{
					Reason: "dependency references a stage outside the pipeline",
					Stages: []string{node.Name, dep},
				}
			}
			target.Dependents = append(target.Dependents, node.Name)
		}
	}
	for _, node := range nodes {
		sort.Strings(node.Dependents)
	}
	order, err := topologicalOrder(names, nodes)
	if err != nil {
		return nil, err
	}
	return &Graph{nodes: nodes, order: order}, nil
}

// topologicalOrder runs Kahn's algorithm over the node set. Declaration
// order breaks ties so runs are reproducible.
func topologicalOrder(names []string, nodes map[string]*Node) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	for _, node := range nodes {
		indegree[node.Name] = len(node.DependsOn)
	}
	queue := make([]string, 0, len(nodes))
	for _, name := range names {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)
		for _, dependent := range nodes[current].Dependents {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	if len(order) != len(nodes) {
		var cyclic []string
		for name, degree := range indegree {
			if degree > 0 {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
		return nil, &GraphError{Reason: "dependency cycle detected", Stages: cyclic}
	}
	return order, nil
}

// Order returns the stage names in execution order.
func (g *Graph) Order() []string {
	return append([]string{}, g.order...)
}

// Node retrieves a node by stage name.
func (g *Graph) Node(name string) (*Node, bool) {
	node, ok := g.nodes[name]
	return node, ok
}

// Contains reports whether the graph has a stage with the given name.
func (g *Graph) Contains(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Descendants returns the transitive dependents of the given roots,
// including the roots themselves. Unknown roots are a graph error.
func (g *Graph) Descendants(roots ...string) (map[string]struct{}, error) {
	result := make(map[string]struct{})
	var visit func(string)
	visit = func(name string) {
		if _, seen := result[name]; seen {
			return
		}
		result[name] = struct{}{}
		for _, dependent := range g.nodes[name].Dependents {
			visit(dependent)
		}
	}
	for _, root := range roots {
		if !g.Contains(root) {
			return nil, &GraphError{Reason: "unknown stage", Stages: []string{root}}
		}
		visit(root)
	}
	return result, nil
}
