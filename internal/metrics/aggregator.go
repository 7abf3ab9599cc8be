package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"cyberguard-server/internal/models"

	"github.com/sirupsen/logrus"
)

// Publisher receives every published snapshot. Implementations fan out to
// the live push channel and any caches; they must not block for long.
type Publisher interface {
	PublishSnapshot(snapshot models.MetricsSnapshot)
}

// Config holds the aggregation tunables.
type Config struct {
	WindowSize      int `mapstructure:"window_size"`
	ScanWindowSize  int `mapstructure:"scan_window_size"`
	RecentSize      int `mapstructure:"recent_size"`
	CriticalPenalty int `mapstructure:"critical_penalty"`
	VulnPenalty     int `mapstructure:"vuln_penalty"`
}

// DefaultConfig returns the standard aggregation window sizes and
// health penalties.
func DefaultConfig() Config {
	return Config{
		WindowSize:      500,
		ScanWindowSize:  100,
		RecentSize:      20,
		CriticalPenalty: 5,
		VulnPenalty:     2,
	}
}

// Aggregator maintains the process-wide metrics snapshot. All writers
// serialize through its mutex; every mutation recomputes and swaps in a
// fresh snapshot, so readers always observe a complete one.
type Aggregator struct {
	mu        sync.Mutex
	cfg       Config
	window    []models.ThreatRecord
	scans     []models.ScanRecord
	events    []models.ActivityItem
	snapshot  models.MetricsSnapshot
	lastStamp time.Time
	publisher Publisher
	log       *logrus.Logger
}

func NewAggregator(cfg Config, publisher Publisher, log *logrus.Logger) *Aggregator {
	if log == nil {
		log = logrus.New()
	}
	a := &Aggregator{
		cfg:       cfg,
		window:    []models.ThreatRecord{},
		scans:     []models.ScanRecord{},
		events:    []models.ActivityItem{},
		publisher: publisher,
		log:       log,
	}
	a.snapshot = a.buildSnapshot()
	a.lastStamp = a.snapshot.Timestamp
	return a
}

// AddThreat folds one scored record into the rolling window and
// republishes. The returned snapshot is the one just published.
func (a *Aggregator) AddThreat(record models.ThreatRecord) models.MetricsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.window = append(a.window, record)
	if len(a.window) > a.cfg.WindowSize {
		a.window = a.window[len(a.window)-a.cfg.WindowSize:]
	}
	a.recordActivityLocked(threatActivity(record))
	return a.recomputeLocked()
}

// ResolveThreat marks a windowed record resolved. Returns false when the
// id is not in the current window.
func (a *Aggregator) ResolveThreat(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.window {
		if a.window[i].ID == id {
			if !a.window[i].Resolved {
				now := time.Now().UTC()
				a.window[i].Resolved = true
				a.window[i].ResolvedAt = &now
				a.recomputeLocked()
			}
			return true
		}
	}
	return false
}

// AddScan records a terminal scan session and republishes. Called
// synchronously by the scan manager on every terminal transition.
func (a *Aggregator) AddScan(record models.ScanRecord) models.MetricsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.scans = append(a.scans, record)
	if len(a.scans) > a.cfg.ScanWindowSize {
		a.scans = a.scans[len(a.scans)-a.cfg.ScanWindowSize:]
	}
	a.recordActivityLocked(scanActivity(record))
	return a.recomputeLocked()
}

// Refresh forces a recompute and timestamp bump even when no new input
// arrived since the last snapshot.
func (a *Aggregator) Refresh() models.MetricsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recomputeLocked()
}

// Current returns the latest published snapshot.
func (a *Aggregator) Current() models.MetricsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot
}

// recomputeLocked rebuilds and swaps the snapshot. A recompute fault keeps
// the previous snapshot as last-known-good instead of taking down writers.
func (a *Aggregator) recomputeLocked() (snap models.MetricsSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			a.log.WithField("panic", r).Error("metrics recompute failed, keeping previous snapshot")
			snap = a.snapshot
		}
	}()

	snapshot := a.buildSnapshot()
	a.snapshot = snapshot
	a.lastStamp = snapshot.Timestamp

	if a.publisher != nil {
		a.publisher.PublishSnapshot(snapshot)
	}
	return snapshot
}

func (a *Aggregator) buildSnapshot() models.MetricsSnapshot {
	active := 0
	critical := 0
	severity := map[string]int{}
	sources := map[string]int{}
	trendBuckets := map[time.Time]int{}

	for _, rec := range a.window {
		if !rec.Resolved {
			active++
			if rec.Classification == models.ClassificationCritical {
				critical++
			}
		}
		if rec.Classification != "" {
			severity[rec.Classification]++
		}
		if rec.Source != "" {
			sources[rec.Source]++
		}
		trendBuckets[rec.CreatedAt.Truncate(time.Hour)]++
	}

	trends := make([]models.TrendPoint, 0, len(trendBuckets))
	for bucket, count := range trendBuckets {
		trends = append(trends, models.TrendPoint{
			Timestamp: bucket,
			Hour:      bucket.Hour(),
			Threats:   count,
		})
	}
	sort.Slice(trends, func(i, j int) bool {
		return trends[i].Timestamp.Before(trends[j].Timestamp)
	})

	highVulns := 0
	for _, scan := range a.scans {
		if scan.Status != models.ScanStateCompleted {
			continue
		}
		for _, f := range scan.Findings {
			if f.Severity == models.SeverityCritical || f.Severity == models.SeverityHigh {
				highVulns++
			}
		}
	}

	health := 100 - a.cfg.CriticalPenalty*critical - a.cfg.VulnPenalty*highVulns
	if health < 0 {
		health = 0
	}

	stamp := time.Now().UTC()
	if !stamp.After(a.lastStamp) {
		stamp = a.lastStamp.Add(time.Nanosecond)
	}

	return models.MetricsSnapshot{
		ActiveThreats:        active,
		CriticalAlerts:       critical,
		SystemHealth:         health,
		NetworkActivity:      len(a.scans),
		ThreatTrends:         trends,
		SeverityDistribution: severity,
		SourceBreakdown:      sources,
		RecentActivity:       a.recentActivity(),
		Timestamp:            stamp,
	}
}

// recordActivityLocked appends one item to the insertion-ordered event
// list, bounded by the combined window sizes.
func (a *Aggregator) recordActivityLocked(item models.ActivityItem) {
	a.events = append(a.events, item)
	if bound := a.cfg.WindowSize + a.cfg.ScanWindowSize; len(a.events) > bound {
		a.events = a.events[len(a.events)-bound:]
	}
}

// recentActivity returns threat ingests and terminal scans merged, reverse
// chronological. Equal timestamps keep their insertion order regardless of
// event kind.
func (a *Aggregator) recentActivity() []models.ActivityItem {
	items := make([]models.ActivityItem, len(a.events))
	copy(items, a.events)

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	if len(items) > a.cfg.RecentSize {
		items = items[:a.cfg.RecentSize]
	}
	return items
}

func threatActivity(rec models.ThreatRecord) models.ActivityItem {
	title := rec.Title
	if title == "" {
		title = fmt.Sprintf("%s threat reported by %s", rec.Type, rec.Source)
	}
	return models.ActivityItem{
		Title:     title,
		Severity:  rec.Classification,
		Source:    rec.Source,
		CreatedAt: rec.CreatedAt,
	}
}

func scanActivity(scan models.ScanRecord) models.ActivityItem {
	return models.ActivityItem{
		Title:     scanActivityTitle(scan),
		Severity:  scanActivitySeverity(scan),
		Source:    "scanner",
		CreatedAt: scan.CreatedAt,
	}
}

func scanActivityTitle(scan models.ScanRecord) string {
	switch scan.Status {
	case models.ScanStateCompleted:
		return fmt.Sprintf("Scan of %s completed with %d findings", scan.Target, scan.FindingCount)
	case models.ScanStateCancelled:
		return fmt.Sprintf("Scan of %s cancelled", scan.Target)
	default:
		return fmt.Sprintf("Scan of %s failed", scan.Target)
	}
}

func scanActivitySeverity(scan models.ScanRecord) string {
	if scan.CriticalCount > 0 {
		return models.ClassificationCritical
	}
	if scan.Status == models.ScanStateFailed {
		return models.ClassificationHigh
	}
	return models.ClassificationLow
}
