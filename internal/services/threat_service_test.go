package services

import (
	"context"
	"sync"
	"testing"

	"cyberguard-server/internal/metrics"
	"cyberguard-server/internal/models"
	"cyberguard-server/internal/scoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *stubBroadcaster) Broadcast(event string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *stubBroadcaster) has(event string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e == event {
			return true
		}
	}
	return false
}

func sevPtr(v int) *int { return &v }

func newTestThreatService() (*ThreatService, *metrics.Aggregator, *stubBroadcaster) {
	agg := metrics.NewAggregator(metrics.DefaultConfig(), nil, nil)
	hub := &stubBroadcaster{}
	svc := NewThreatService(nil, nil, agg, hub, scoring.DefaultPhishingConfig(), "", "", nil)
	return svc, agg, hub
}

func TestIngestScoresAndAggregates(t *testing.T) {
	svc, agg, hub := newTestThreatService()

	analysis, err := svc.Ingest(context.Background(), models.ThreatRecord{
		Type:     models.ThreatTypeRansomware,
		Severity: sevPtr(9),
		Source:   "VirusTotal",
		Verified: true,
	})
	require.NoError(t, err)
	require.NotNil(t, analysis)

	assert.Equal(t, models.ClassificationCritical, analysis.Classification)
	assert.Equal(t, 100, analysis.RiskScore)
	assert.NotEmpty(t, analysis.ThreatID)

	snap := agg.Current()
	assert.Equal(t, 1, snap.ActiveThreats)
	assert.Equal(t, 1, snap.CriticalAlerts)

	assert.True(t, hub.has("threat:new"))
}

func TestIngestRejectsMalformedRecords(t *testing.T) {
	svc, agg, _ := newTestThreatService()

	cases := []models.ThreatRecord{
		{},
		{Type: models.ThreatTypeMalware, Severity: sevPtr(11)},
		{Type: models.ThreatTypeMalware, Severity: sevPtr(-1)},
	}

	for _, record := range cases {
		_, err := svc.Ingest(context.Background(), record)
		assert.ErrorIs(t, err, ErrInvalidRecord)
	}

	assert.Zero(t, agg.Current().ActiveThreats, "rejected records never reach the aggregate")
}

func TestIngestDegradesUnknownType(t *testing.T) {
	svc, _, _ := newTestThreatService()

	analysis, err := svc.Ingest(context.Background(), models.ThreatRecord{
		Type:     "zero-day-chatter",
		Severity: sevPtr(4),
	})
	require.NoError(t, err)

	// unknown types score with the neutral multiplier
	assert.Equal(t, 40, analysis.RiskScore)
	assert.Equal(t, "Review the indicator and monitor for related activity", analysis.Recommendation)
}

func TestIngestBatchSkipsInvalid(t *testing.T) {
	svc, agg, _ := newTestThreatService()

	analyses, rejected := svc.IngestBatch(context.Background(), []models.ThreatRecord{
		{Type: models.ThreatTypeMalware, Severity: sevPtr(7)},
		{Severity: sevPtr(5)},
		{Type: models.ThreatTypePhishing, Severity: sevPtr(3)},
	})

	assert.Len(t, analyses, 2)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 2, agg.Current().ActiveThreats)
}

func TestResolveThroughAggregator(t *testing.T) {
	svc, agg, _ := newTestThreatService()

	analysis, err := svc.Ingest(context.Background(), models.ThreatRecord{
		Type:     models.ThreatTypeBreach,
		Severity: sevPtr(8),
	})
	require.NoError(t, err)

	assert.True(t, svc.Resolve(analysis.ThreatID))
	assert.Zero(t, agg.Current().ActiveThreats)

	assert.False(t, svc.Resolve("missing"))
}

func TestListWithoutDatabase(t *testing.T) {
	svc, _, _ := newTestThreatService()

	threats, total, err := svc.List(1, 20, "", "", "")
	require.NoError(t, err)
	assert.Empty(t, threats)
	assert.Zero(t, total)
}

func TestUnresolvedBacklogWithoutDatabase(t *testing.T) {
	svc, _, _ := newTestThreatService()

	backlog, err := svc.UnresolvedBacklog()
	require.NoError(t, err)
	assert.Zero(t, backlog)
}

func TestAnalyzeDoesNotMutateState(t *testing.T) {
	svc, agg, hub := newTestThreatService()

	analysis, err := svc.Analyze(models.ThreatRecord{
		Type:     models.ThreatTypeMalware,
		Severity: sevPtr(6),
		Source:   "Shodan",
	})
	require.NoError(t, err)
	// 6 x 10 x 1.5 + 15 clamps at 100
	assert.Equal(t, 100, analysis.RiskScore)
	assert.Zero(t, agg.Current().ActiveThreats)
	assert.False(t, hub.has("threat:new"))
}

func TestAnalyzePhishing(t *testing.T) {
	svc, _, _ := newTestThreatService()

	verdict := svc.AnalyzePhishing("Dear customer, verify your account immediately at http://bit.ly/x")
	require.NotNil(t, verdict)
	assert.True(t, verdict.IsPhishing)
}

func TestAnalyzePosture(t *testing.T) {
	svc, _, _ := newTestThreatService()

	set := svc.AnalyzePosture(models.SecurityProfile{})
	require.NotNil(t, set)
	assert.Equal(t, models.ClassificationCritical, set.OverallRisk)
	assert.Len(t, set.Recommendations, 6)
}
