package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGoPropagatesError(t *testing.T) {
	s, _ := New(context.Background())
	boom := errors.New("boom")
	s.Go("failing", func(ctx context.Context) error { return boom })
	s.Go("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	assert.ErrorIs(t, s.Wait(), boom)
}

func TestGoRecoversPanic(t *testing.T) {
	s, _ := New(context.Background())
	s.Go("panicking", func(ctx context.Context) error {
		panic("kaboom")
	})
	err := s.Wait()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "panicking")
}

func TestGoCancelsSiblingsOnFailure(t *testing.T) {
	s, gctx := New(context.Background())
	done := make(chan struct{})
	s.Go("failing", func(ctx context.Context) error {
		return errors.New("fail fast")
	})
	s.Go("observer", func(ctx context.Context) error {
		<-ctx.Done()
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sibling task was not cancelled")
	}
	<-gctx.Done()
	_ = s.Wait()
}
