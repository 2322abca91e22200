package orchestration

import (
	"context"
	"fmt"
)

// onContextCancel arms a hook that runs if ctx ends first. The returned
// disarm func stops the hook; calling it more than once is safe.
func onContextCancel(ctx context.Context, hook func()) (disarm func()) {
	disarmed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			hook()
		case <-disarmed:
		}
	}()

	var once bool
	return func() {
		if !once {
			once = true
			close(disarmed)
		}
	}
}

type workerRun func(context.Context) error

// namedWorker wraps a worker so panics surface as errors carrying the
// worker's name instead of tearing the process down.
func namedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}
		return nil
	}
}
