package bwm

// topology.go is the scenario driver's host-graph and shortest-path
// helper: it lives one layer above the core, used only to turn a
// topology file into routes for the driver's simulated links, since
// the core itself never makes a routing decision. Grounded on
// routes.go's buildconnGraph/getSPTree/routeFrom, adapted from mrnes's
// device-id graph to a plain host-id graph built from a parsed
// Topology (config.go), and from hop-count weighting to link-delay
// weighting, since here the graph describes real propagation delay
// rather than placeholder unit-weight hops.

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// HostGraph is a gonum weighted undirected graph over host ids, edge
// weight equal to link delay in seconds.
type HostGraph struct {
	g     *simple.WeightedUndirectedGraph
	nodes map[int]simple.Node
	trees map[int]path.Shortest // cache of shortest-path trees, keyed by root host id
}

// BuildHostGraph builds a HostGraph from a parsed Topology's links.
func BuildHostGraph(topo *Topology) *HostGraph {
	hg := &HostGraph{
		g:     simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		nodes: make(map[int]simple.Node),
		trees: make(map[int]path.Shortest),
	}

	nodeFor := func(id int) simple.Node {
		n, ok := hg.nodes[id]
		if !ok {
			n = simple.Node(id)
			hg.nodes[id] = n
			hg.g.AddNode(n)
		}
		return n
	}

	for _, link := range topo.Links {
		src := nodeFor(link.Src)
		dst := nodeFor(link.Dst)
		weight := link.LinkDelay
		if weight <= 0 {
			weight = 1e-9 // gonum's Dijkstra requires non-negative, non-zero weights to break ties sensibly
		}
		hg.g.SetWeightedEdge(simple.WeightedEdge{F: src, T: dst, W: weight})
	}

	return hg
}

// shortestPathTree returns the cached shortest-path tree rooted at
// hostID, computing and caching it on first use.
func (hg *HostGraph) shortestPathTree(hostID int) path.Shortest {
	if tree, ok := hg.trees[hostID]; ok {
		return tree
	}
	tree := path.DijkstraFrom(hg.nodes[hostID], hg.g)
	hg.trees[hostID] = tree
	return tree
}

// ShortestPath returns the sequence of host ids on the shortest
// (lowest total link-delay) path from src to dst, inclusive of both
// endpoints.
func (hg *HostGraph) ShortestPath(src, dst int) ([]int, error) {
	if _, ok := hg.nodes[src]; !ok {
		return nil, fmt.Errorf("bwm: unknown host id %d in topology", src)
	}
	if _, ok := hg.nodes[dst]; !ok {
		return nil, fmt.Errorf("bwm: unknown host id %d in topology", dst)
	}

	tree := hg.shortestPathTree(src)
	nodeSeq, _ := tree.To(int64(dst))
	if len(nodeSeq) == 0 {
		return nil, fmt.Errorf("bwm: no path from host %d to host %d", src, dst)
	}

	route := make([]int, 0, len(nodeSeq))
	for _, n := range nodeSeq {
		route = append(route, int(n.ID()))
	}
	return route, nil
}

// ShowPath renders a route (as returned by ShortestPath) as a
// comma-joined string of host ids, matching mrnes's own ShowPath
// convention of a single human-readable route string for logging.
func ShowPath(route []int) string {
	s := ""
	for i, id := range route {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", id)
	}
	return s
}
