package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Worker is anything the readiness group can poll.
type Worker interface {
	Name() string
	Ready() bool
}

// Group aggregates worker readiness for the HTTP surface. The service is
// ready once any worker has completed a run; individual feeds being down
// must not take the whole process out of rotation.
type Group struct {
	workers []Worker
}

func NewGroup(workers ...Worker) *Group {
	return &Group{workers: workers}
}

func (g *Group) Add(w Worker) {
	g.workers = append(g.workers, w)
}

// CheckReadiness returns nil once at least one worker completed a run.
func (g *Group) CheckReadiness(_ context.Context) error {
	if len(g.workers) == 0 {
		return errors.New("no workers configured")
	}
	names := make([]string, 0, len(g.workers))
	for _, w := range g.workers {
		if w.Ready() {
			return nil
		}
		names = append(names, w.Name())
	}
	return fmt.Errorf("no worker has completed a run yet (waiting on %s)", strings.Join(names, ", "))
}

// WorkerStates reports each worker's readiness by name, for the detailed
// readiness response.
func (g *Group) WorkerStates() map[string]bool {
	states := make(map[string]bool, len(g.workers))
	for _, w := range g.workers {
		states[w.Name()] = w.Ready()
	}
	return states
}
