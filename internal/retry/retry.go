package retry

import (
	"context"
	"time"
)

// Policy runs an operation at most len(Delays) times, sleeping Delays[i]
// before attempt i. A zero first delay means the first attempt is immediate.
// Sleep is injectable so tests run without wall-clock waits.
type Policy struct {
	Delays []time.Duration
	Sleep  func(ctx context.Context, d time.Duration) error
}

// Fixed returns a policy with the given per-attempt delays.
func Fixed(delays ...time.Duration) Policy {
	return Policy{Delays: delays}
}

// Do calls fn once per configured attempt until it reports done=true or the
// context is cancelled. The error of the last attempt is returned; a nil
// error with done=false means the attempts were exhausted without a result.
func (p Policy) Do(ctx context.Context, fn func(attempt int) (done bool, err error)) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	var lastErr error
	for i, d := range p.Delays {
		if d > 0 {
			if err := sleep(ctx, d); err != nil {
				return err
			}
		}
		done, err := fn(i)
		lastErr = err
		if done {
			return err
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
