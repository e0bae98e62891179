// Package graph provides the task dependency graph used for planning.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

var (
	// ErrCycleDetected indicates a circular dependency was found in the task graph.
	ErrCycleDetected = errors.New("circular dependency detected")
	// ErrUnknownTask indicates an edge references a task that is not a node.
	ErrUnknownTask = errors.New("unknown task")
	// ErrFrozen indicates a mutation was attempted after planning finished.
	ErrFrozen = errors.New("graph is frozen")
)

// EdgeKind records which inference produced an edge.
type EdgeKind string

const (
	EdgeExplicit EdgeKind = "explicit"
	EdgeSequence EdgeKind = "sequence"
	EdgeCategory EdgeKind = "category"
	EdgeEntity   EdgeKind = "entity"
)

// Edge is a "must complete before" relation: From completes before To starts.
type Edge struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Kind   EdgeKind `json:"kind"`
	Reason string   `json:"reason,omitempty"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -> %s (%s)", e.From, e.To, e.Kind)
}

// TaskGraph is a directed graph over task ids. It refers to tasks owned by
// the session; it never copies or frees them. All iteration is in natural
// id order so results are deterministic.
type TaskGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// order is the insertion order of nodes.
	order []string
	// out maps task ID to the edges leaving it, keyed by target.
	out map[string]map[string]Edge
	// in maps task ID to the sources of edges entering it.
	in     map[string]map[string]bool
	frozen bool
	logger *slog.Logger
}

// New creates a new empty graph.
func New() *TaskGraph {
	return &TaskGraph{
		nodes:  make(map[string]*models.Task),
		out:    make(map[string]map[string]Edge),
		in:     make(map[string]map[string]bool),
		logger: slog.New(slog.DiscardHandler),
	}
}

// Build creates a graph with tasks as nodes and edges from each task's
// Dependencies. Unknown dependency ids are an error.
func Build(tasks []*models.Task) (*TaskGraph, error) {
	g := New()
	for _, t := range tasks {
		g.AddTask(t)
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if _, err := g.AddEdge(dep, t.ID, EdgeExplicit, "declared dependency"); err != nil {
				return nil, fmt.Errorf("task %s: %w", t.ID, err)
			}
		}
	}
	return g, nil
}

// SetLogger sets the debug logger.
func (g *TaskGraph) SetLogger(l *slog.Logger) {
	if l != nil {
		g.logger = l
	}
}

// AddTask registers t as a node. Re-adding an id replaces the task reference.
func (g *TaskGraph) AddTask(t *models.Task) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[t.ID]; !ok {
		g.order = append(g.order, t.ID)
		g.out[t.ID] = make(map[string]Edge)
		g.in[t.ID] = make(map[string]bool)
	}
	g.nodes[t.ID] = t
}

// AddEdge adds from -> to. It reports false when the edge already exists or
// is a self loop.
func (g *TaskGraph) AddEdge(from, to string, kind EdgeKind, reason string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return false, ErrFrozen
	}
	if _, ok := g.nodes[from]; !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownTask, from)
	}
	if _, ok := g.nodes[to]; !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownTask, to)
	}
	if from == to {
		return false, nil
	}
	if _, ok := g.out[from][to]; ok {
		return false, nil
	}
	g.out[from][to] = Edge{From: from, To: to, Kind: kind, Reason: reason}
	g.in[to][from] = true
	g.logger.Debug("edge added", "from", from, "to", to, "kind", kind, "reason", reason)
	return true, nil
}

// RemoveEdge deletes from -> to and reports whether it existed.
func (g *TaskGraph) RemoveEdge(from, to string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return false, ErrFrozen
	}
	return g.removeEdgeLocked(from, to), nil
}

func (g *TaskGraph) removeEdgeLocked(from, to string) bool {
	if _, ok := g.out[from][to]; !ok {
		return false
	}
	delete(g.out[from], to)
	delete(g.in[to], from)
	return true
}

// HasEdge reports whether from -> to exists.
func (g *TaskGraph) HasEdge(from, to string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.out[from][to]
	return ok
}

// Connected reports whether an edge exists between a and b in either direction.
func (g *TaskGraph) Connected(a, b string) bool {
	return g.HasEdge(a, b) || g.HasEdge(b, a)
}

// Edge returns the edge from -> to.
func (g *TaskGraph) Edge(from, to string) (Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.out[from][to]
	return e, ok
}

// Edges returns all edges sorted by source then target.
func (g *TaskGraph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var edges []Edge
	for _, from := range g.sortedIDsLocked() {
		for _, to := range sortedKeys(g.out[from]) {
			edges = append(edges, g.out[from][to])
		}
	}
	return edges
}

// Task returns the task for a given ID, or nil if not found.
func (g *TaskGraph) Task(id string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Tasks returns the tasks in insertion order.
func (g *TaskGraph) Tasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*models.Task, len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// IDs returns the node ids in insertion order.
func (g *TaskGraph) IDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.order)
}

// Size returns the number of tasks in the graph.
func (g *TaskGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the ids that must complete before id.
func (g *TaskGraph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.in[id])
}

// Dependents returns the ids that wait on id.
func (g *TaskGraph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.out[id])
}

// InDegree returns the number of dependencies of id.
func (g *TaskGraph) InDegree(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.in[id])
}

// OutDegree returns the number of dependents of id.
func (g *TaskGraph) OutDegree(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.out[id])
}

// Freeze makes the graph read-only.
func (g *TaskGraph) Freeze() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.frozen = true
}

// Frozen reports whether Freeze was called.
func (g *TaskGraph) Frozen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frozen
}

// SyncDependencies writes each task's Dependencies from the graph edges.
func (g *TaskGraph) SyncDependencies() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for id, t := range g.nodes {
		t.Dependencies = sortedKeys(g.in[id])
	}
}

// HasCycles returns true if the graph contains a circular dependency.
func (g *TaskGraph) HasCycles() bool {
	return g.FindCycle() != nil
}

// FindCycle returns the nodes of one cycle in edge order (c[0] -> c[1] ->
// ... -> c[0]), or nil when the graph is acyclic. Depth-first search with an
// explicit recursion stack; roots and successors are visited in natural id
// order, so the same graph always yields the same cycle.
func (g *TaskGraph) FindCycle() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.findCycleLocked()
}

func (g *TaskGraph) findCycleLocked() []string {
	// Color states: 0 = white (unvisited), 1 = gray (on stack), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		stack = append(stack, id)
		for _, next := range sortedKeys(g.out[id]) {
			switch colors[next] {
			case 1:
				// Back edge: the cycle is the stack suffix starting at next.
				start := slices.Index(stack, next)
				cycle = slices.Clone(stack[start:])
				return true
			case 0:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		colors[id] = 2
		return false
	}

	for _, id := range g.sortedIDsLocked() {
		if colors[id] == 0 && visit(id) {
			return cycle
		}
	}
	return nil
}

// BrokenCycle records one cycle and the edge removed to break it.
type BrokenCycle struct {
	Cycle   []string
	Removed Edge
}

// BreakCycles removes edges until the graph is acyclic. For each cycle found
// the edge from the largest id back to the smallest id is removed; when that
// edge is not part of the cycle, the cycle edge entering the smallest id is
// removed instead. Either way the smallest id keeps its place ahead of the
// others.
func (g *TaskGraph) BreakCycles() ([]BrokenCycle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return nil, ErrFrozen
	}

	var broken []BrokenCycle
	for {
		cycle := g.findCycleLocked()
		if cycle == nil {
			return broken, nil
		}
		smallest, largest := cycle[0], cycle[0]
		for _, id := range cycle[1:] {
			if models.CompareIDs(id, smallest) < 0 {
				smallest = id
			}
			if models.CompareIDs(id, largest) > 0 {
				largest = id
			}
		}

		from := largest
		if !cycleHasEdge(cycle, largest, smallest) {
			i := slices.Index(cycle, smallest)
			from = cycle[(i-1+len(cycle))%len(cycle)]
		}
		edge := g.out[from][smallest]
		g.removeEdgeLocked(from, smallest)
		g.logger.Debug("cycle broken", "cycle", cycle, "removed", edge.String())
		broken = append(broken, BrokenCycle{Cycle: cycle, Removed: edge})
	}
}

// cycleHasEdge reports whether from -> to is a consecutive pair in cycle.
func cycleHasEdge(cycle []string, from, to string) bool {
	for i, id := range cycle {
		if id == from && cycle[(i+1)%len(cycle)] == to {
			return true
		}
	}
	return false
}

// TopologicalSort returns ids so that every task follows its dependencies.
// Among ready tasks the earliest inserted comes first.
func (g *TaskGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	indeg := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indeg[id] = len(g.in[id])
	}
	var result []string
	done := make(map[string]bool, len(g.nodes))
	for len(result) < len(g.order) {
		progressed := false
		for _, id := range g.order {
			if done[id] || indeg[id] > 0 {
				continue
			}
			done[id] = true
			result = append(result, id)
			for to := range g.out[id] {
				indeg[to]--
			}
			progressed = true
		}
		if !progressed {
			return nil, ErrCycleDetected
		}
	}
	return result, nil
}

func (g *TaskGraph) sortedIDsLocked() []string {
	ids := slices.Clone(g.order)
	slices.SortFunc(ids, models.CompareIDs)
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, models.CompareIDs)
	return keys
}
