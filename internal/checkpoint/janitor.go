package checkpoint

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultIdleTTL is how long an untouched thread is kept.
const DefaultIdleTTL = 30 * time.Minute

type Sweeper interface {
	Sweep(ctx context.Context, idle time.Duration) (int, error)
}

// RunJanitor removes idle threads every interval until ctx is cancelled.
func RunJanitor(ctx context.Context, s Sweeper, interval, idle time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx, idle)
			if err != nil {
				log.Error().Err(err).Msg("checkpoint sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("removed", n).Msg("expired idle threads")
			}
		}
	}
}
