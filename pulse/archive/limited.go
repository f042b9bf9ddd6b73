package archive

import (
	"context"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/pulse/task"
	"golang.org/x/time/rate"
)

// Limited throttles uploads to a backend
type Limited struct {
	next    Archiver
	limiter *rate.Limiter
}

// NewLimited allows perSecond uploads with the given burst
func NewLimited(next Archiver, perSecond float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limited) Upload(ctx context.Context, t *task.Task) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(err, "archive rate limit wait for task %s", t.ID)
	}
	return l.next.Upload(ctx, t)
}

func (l *Limited) Close() error { return l.next.Close() }
