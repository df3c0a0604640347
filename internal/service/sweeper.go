package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// SessionExpirer expires stale pending sessions.
type SessionExpirer interface {
	ExpireStaleSessions(ctx context.Context) (int64, error)
}

// RunSessionSweeper expires stale sessions every interval until ctx is done.
// Approve and Reject expire sessions lazily, so the sweeper only keeps
// reads and pending lists tidy. A non-positive interval disables it.
func RunSessionSweeper(ctx context.Context, expirer SessionExpirer, interval time.Duration) {
	if interval <= 0 {
		log.Info().Msg("Session sweeper disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("Session sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Session sweeper stopped")
			return
		case <-ticker.C:
			n, err := expirer.ExpireStaleSessions(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("Session sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("expired", n).Msg("Expired stale redemption sessions")
			}
		}
	}
}
