package builder

import "sort"

// dependencyGraph tracks direct composite-to-composite descriptor
// references, adapted from a plugin dependency graph of the kind used for
// initialization ordering: here it backs a cheap
// registration-time sanity check rather than a scheduling order.
type dependencyGraph struct {
	nodes    map[string]struct{}
	outgoing map[string]map[string]struct{}
}

func newDependencyGraph() *dependencyGraph {
	return &dependencyGraph{
		nodes:    make(map[string]struct{}),
		outgoing: make(map[string]map[string]struct{}),
	}
}

func (g *dependencyGraph) addNode(name string) {
	if _, ok := g.nodes[name]; ok {
		return
	}
	g.nodes[name] = struct{}{}
	g.outgoing[name] = make(map[string]struct{})
}

func (g *dependencyGraph) addEdge(from, to string) {
	g.addNode(from)
	g.addNode(to)
	g.outgoing[from][to] = struct{}{}
}

// detectCycle returns one cycle if present, nil otherwise.
func (g *dependencyGraph) detectCycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var path []string
	var cycle []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)

		refs := make([]string, 0, len(g.outgoing[node]))
		for ref := range g.outgoing[node] {
			refs = append(refs, ref)
		}
		sort.Strings(refs)

		for _, ref := range refs {
			if !visited[ref] {
				if dfs(ref) {
					return true
				}
			} else if onStack[ref] {
				idx := len(path) - 1
				for idx >= 0 && path[idx] != ref {
					idx--
				}
				if idx >= 0 {
					cycle = append([]string{}, path[idx:]...)
					return true
				}
			}
		}

		onStack[node] = false
		path = path[:len(path)-1]
		return false
	}

	nodes := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	for _, n := range nodes {
		if !visited[n] {
			if dfs(n) {
				break
			}
		}
	}
	return cycle
}
