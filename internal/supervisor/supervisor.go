// Package supervisor runs a set of long-lived goroutines together, turning
// any one's panic or error into a coordinated shutdown of the rest
// (SPEC_FULL §A, grounded on the teacher's cmd/utils node-lifecycle idiom).
package supervisor

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// Group supervises a set of tasks started via Go, cancelling ctx and
// returning the first error (recovered panics included) once any task
// returns an error. A task that returns nil does not cancel the others.
type Group struct {
	g   *errgroup.Group
	ctx context.Context
}

// New wraps ctx in an errgroup-derived context; cancelling the returned
// Group's context stops every task registered with Go.
func New(ctx context.Context) (*Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	return &Group{g: g, ctx: gctx}, gctx
}

// Go registers a task. A panic inside fn is recovered, logged at error
// level and turned into the group's error so one runaway goroutine cannot
// take the process down silently; the cmd binaries turn that error into a
// fatal exit via log.Crit.
func (s *Group) Go(name string, fn func(ctx context.Context) error) {
	s.g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("supervisor: recovered panic", "task", name, "panic", r)
				err = fmt.Errorf("supervisor: task %q panicked: %v", name, r)
			}
		}()
		return fn(s.ctx)
	})
}

// Wait blocks until every registered task has returned, yielding the first
// non-nil error.
func (s *Group) Wait() error {
	return s.g.Wait()
}
