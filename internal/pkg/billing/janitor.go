package billing

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RunCorrelationJanitor prunes stale correlations every interval until ctx is
// cancelled. It blocks; run it in its own goroutine.
func RunCorrelationJanitor(ctx context.Context, svc *Service, retention, interval time.Duration) {
	if interval <= 0 {
		log.Info().Msg("correlation janitor disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PruneCorrelations(ctx, retention)
			if err != nil {
				log.Error().Err(err).Msg("pruning pending correlations failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Dur("retention", retention).Msg("pruned pending correlations")
			}
		}
	}
}
