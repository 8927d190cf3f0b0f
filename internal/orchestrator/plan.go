// Package orchestrator runs the jobs of a segment as child processes, one at
// a time, and keeps a timestamped log of every step.
package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"pbietl/internal/dag"
	"pbietl/internal/jobs"
)

// SegmentTodos runs the financial segment followed by the model segment.
const SegmentTodos = "TODOS"

// ErrUnknownSegment is returned by Plan for names other than the known segments.
var ErrUnknownSegment = errors.New("orchestrator: unknown segment")

// Segments lists the accepted segment names.
func Segments() []string {
	return []string{jobs.SegmentFinanciero, jobs.SegmentModelado, SegmentTodos}
}

// Graph builds the dependency graph of every registered job. Nodes keep the
// registry order so ties in the sort follow the declared flow.
func Graph(reg *jobs.Registry) (*dag.Graph, error) {
	g := dag.NewGraph()
	for _, j := range reg.All() {
		g.AddNode(j.Name, j)
	}
	for _, j := range reg.All() {
		for _, dep := range j.DependsOn {
			if err := g.AddEdge(dep, j.Name); err != nil {
				return nil, fmt.Errorf("job %s: %w", j.Name, err)
			}
		}
	}
	return g, nil
}

// Plan returns the jobs of segment in dependency order.
//
// Jobs of other segments are not scheduled; their outputs are expected to be
// in place from an earlier run.
//
// Errors:
//   - ErrUnknownSegment.
//   - A dependency on an unregistered job or a dependency cycle.
func Plan(reg *jobs.Registry, segment string) ([]*jobs.Job, error) {
	segment = strings.ToUpper(strings.TrimSpace(segment))
	switch segment {
	case jobs.SegmentFinanciero, jobs.SegmentModelado, SegmentTodos:
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownSegment, segment, strings.Join(Segments(), ", "))
	}
	g, err := Graph(reg)
	if err != nil {
		return nil, err
	}
	nodes, err := g.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	var out []*jobs.Job
	for _, n := range nodes {
		j := n.Data.(*jobs.Job)
		if segment == SegmentTodos || j.Segment == segment {
			out = append(out, j)
		}
	}
	return out, nil
}

// LogPrefix is the log file prefix of a segment.
func LogPrefix(segment string) string {
	segment = strings.ToUpper(strings.TrimSpace(segment))
	if segment == SegmentTodos {
		return "Proceso_Completo"
	}
	return "Proceso_" + segment
}
