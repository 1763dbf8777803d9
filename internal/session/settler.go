package session

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/drillcore/internal/config"
	"github.com/example/drillcore/internal/logger"
)

// Settler periodically settles sessions that have gone quiet. One user's
// failed flush never blocks another's; the failed user stays in the active
// set and is retried on the next sweep.
type Settler struct {
	rdb     *redis.Client
	flusher Flusher
	cfg     config.Config
	log     *logger.Logger
}

// NewSettler creates a Settler.
func NewSettler(rdb *redis.Client, flusher Flusher, cfg config.Config, log *logger.Logger) *Settler {
	return &Settler{
		rdb:     rdb,
		flusher: flusher,
		cfg:     cfg,
		log:     log.With("component", "settler"),
	}
}

// SettleInactive flushes every user whose last activity is older than the
// inactivity cutoff. Returns how many users were settled.
func (s *Settler) SettleInactive(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.InactiveAfter).UnixMilli()
	userIDs, err := s.rdb.ZRangeByScore(ctx, activeSessionsKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, userID := range userIDs {
		if err := s.flusher.Flush(ctx, userID); err != nil {
			s.log.Error("session flush failed", "userId", userID, "error", err)
			continue
		}
		settled++
	}
	if settled > 0 {
		s.log.Info("inactive sessions settled", "count", settled, "candidates", len(userIDs))
	}
	return settled, nil
}
