package services

import (
	"context"
	"encoding/json"
	"time"

	"cyberguard-server/internal/metrics"
	"cyberguard-server/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// MetricsService owns the aggregator and fans recomputed snapshots out
// to WebSocket subscribers and the Redis snapshot cache. It is the
// aggregator's Publisher.
type MetricsService struct {
	aggregator  *metrics.Aggregator
	hub         Broadcaster
	redis       *redis.Client
	snapshotKey string
	snapshotTTL time.Duration
	refresh     time.Duration
	log         *logrus.Logger
}

func NewMetricsService(cfg metrics.Config, hub Broadcaster, redisClient *redis.Client,
	snapshotKey string, snapshotTTL, refreshInterval time.Duration, log *logrus.Logger) *MetricsService {
	if log == nil {
		log = logrus.New()
	}
	s := &MetricsService{
		hub:         hub,
		redis:       redisClient,
		snapshotKey: snapshotKey,
		snapshotTTL: snapshotTTL,
		refresh:     refreshInterval,
		log:         log,
	}
	s.aggregator = metrics.NewAggregator(cfg, s, log)
	return s
}

// Aggregator exposes the owned aggregator for wiring producers.
func (s *MetricsService) Aggregator() *metrics.Aggregator {
	return s.aggregator
}

// PublishSnapshot pushes a freshly recomputed snapshot to connected
// clients and caches it in Redis for consumers outside this process.
func (s *MetricsService) PublishSnapshot(snapshot models.MetricsSnapshot) {
	if s.hub != nil {
		s.hub.Broadcast("metrics:update", snapshot)
	}

	if s.redis != nil {
		payload, err := json.Marshal(snapshot)
		if err != nil {
			s.log.WithError(err).Warn("failed to marshal metrics snapshot")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.redis.Set(ctx, s.snapshotKey, payload, s.snapshotTTL).Err(); err != nil {
			s.log.WithError(err).Warn("failed to cache metrics snapshot in Redis")
		}
	}
}

// Realtime returns the current published snapshot without recomputing.
func (s *MetricsService) Realtime() models.MetricsSnapshot {
	return s.aggregator.Current()
}

// Refresh forces a recompute and returns the new snapshot.
func (s *MetricsService) Refresh() models.MetricsSnapshot {
	return s.aggregator.Refresh()
}

// Warmup reads the snapshot a previous process cached in Redis. The
// aggregate itself always restarts empty; the cached copy only tells
// the operator where the last run left off.
func (s *MetricsService) Warmup(ctx context.Context) (models.MetricsSnapshot, bool) {
	var snapshot models.MetricsSnapshot
	if s.redis == nil {
		return snapshot, false
	}

	payload, err := s.redis.Get(ctx, s.snapshotKey).Result()
	if err != nil {
		if err != redis.Nil {
			s.log.WithError(err).Warn("failed to read cached metrics snapshot")
		}
		return snapshot, false
	}
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		s.log.WithError(err).Warn("cached metrics snapshot is corrupt")
		return snapshot, false
	}
	return snapshot, true
}

// StartRefresher recomputes the snapshot on a fixed interval until the
// context is cancelled so trend buckets age out even when nothing is
// being ingested.
func (s *MetricsService) StartRefresher(ctx context.Context) {
	interval := s.refresh
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.log.Info("metrics refresher stopped")
				return
			case <-ticker.C:
				s.aggregator.Refresh()
			}
		}
	}()
}
