package scan

import (
	"context"
	"sync"
	"testing"
	"time"

	"cyberguard-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu        sync.Mutex
	progress  []models.ScanRecord
	terminals []models.ScanRecord
}

func (s *captureSink) ScanProgress(record models.ScanRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, record)
}

func (s *captureSink) ScanTerminal(record models.ScanRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminals = append(s.terminals, record)
}

func startRunning(target, scanType string) (*Session, context.Context) {
	session := newSession(target, scanType)
	ctx, cancel := context.WithCancel(context.Background())
	session.mu.Lock()
	session.state = models.ScanStateRunning
	session.startedAt = time.Now().UTC()
	session.cancel = cancel
	session.mu.Unlock()
	return session, ctx
}

func TestSetProgressOnlyWhileRunning(t *testing.T) {
	session := newSession("198.51.100.4", models.ScanTypeBasic)

	assert.False(t, session.setProgress(10, "host discovery"), "progress before RUNNING is dropped")

	session.mu.Lock()
	session.state = models.ScanStateRunning
	session.mu.Unlock()

	assert.True(t, session.setProgress(50, "port probe"))
	assert.True(t, session.setProgress(30, "port probe"), "stale update accepted but progress holds")
	assert.Equal(t, 50, session.Record().Progress)
}

func TestTerminalTransitionExactlyOnce(t *testing.T) {
	session, _ := startRunning("198.51.100.4", models.ScanTypeBasic)

	findings := []models.VulnerabilityFinding{{Title: "telnet", Severity: models.SeverityCritical}}
	pending, ok := session.beginTerminal(models.ScanStateCompleted, findings, "")
	require.True(t, ok)
	_, ok = session.beginTerminal(models.ScanStateCancelled, nil, "")
	assert.False(t, ok, "terminal states are sinks")

	assert.False(t, session.setProgress(99, "late"), "progress frozen once claimed")

	session.finishTerminal(pending)

	record := session.Record()
	assert.Equal(t, models.ScanStateCompleted, record.Status)
	assert.Equal(t, 100, record.Progress)
	assert.Equal(t, 1, record.FindingCount)
	require.NotNil(t, record.FinishedAt)

	select {
	case <-session.Done():
	default:
		t.Fatal("done channel not closed on terminal transition")
	}
}

func TestTerminalNotObservableBeforePublish(t *testing.T) {
	session, _ := startRunning("198.51.100.4", models.ScanTypeBasic)

	pending, ok := session.beginTerminal(models.ScanStateCancelled, nil, "")
	require.True(t, ok)

	// until the terminal record is published, readers still see RUNNING
	assert.Equal(t, models.ScanStateRunning, session.State())
	select {
	case <-session.Done():
		t.Fatal("done channel closed before publish")
	default:
	}

	session.finishTerminal(pending)
	assert.Equal(t, models.ScanStateCancelled, session.State())
}

func TestCancelledSessionKeepsNoFindings(t *testing.T) {
	session, _ := startRunning("198.51.100.4", models.ScanTypeBasic)

	pending, ok := session.beginTerminal(models.ScanStateCancelled, nil, "")
	require.True(t, ok)
	session.finishTerminal(pending)

	record := session.Record()
	assert.Equal(t, models.ScanStateCancelled, record.Status)
	assert.Less(t, record.Progress, 100)
	assert.Empty(t, record.Findings)
}

func TestRunEmitsMonotonicProgress(t *testing.T) {
	session, ctx := startRunning("198.51.100.4", models.ScanTypeBasic)
	sink := &captureSink{}
	prober := &fakeProber{open: map[int]bool{23: true}}

	session.run(ctx, prober, testConfig(), sink)

	sink.mu.Lock()
	defer sink.mu.Unlock()

	require.Len(t, sink.terminals, 1)
	assert.Equal(t, models.ScanStateCompleted, sink.terminals[0].Status)

	require.NotEmpty(t, sink.progress)
	prev := -1
	for _, rec := range sink.progress {
		assert.GreaterOrEqual(t, rec.Progress, prev)
		prev = rec.Progress
	}
}

// inspectSink records what the session looked like at the moment the
// terminal event was delivered.
type inspectSink struct {
	captureSink
	session         *Session
	stateAtTerminal string
	doneAtTerminal  bool
}

func (s *inspectSink) ScanTerminal(record models.ScanRecord) {
	s.stateAtTerminal = s.session.State()
	select {
	case <-s.session.Done():
		s.doneAtTerminal = true
	default:
	}
	s.captureSink.ScanTerminal(record)
}

func TestTerminalEventDeliveredBeforeStatePublished(t *testing.T) {
	session, ctx := startRunning("198.51.100.4", models.ScanTypeBasic)
	sink := &inspectSink{session: session}

	session.run(ctx, &fakeProber{open: map[int]bool{23: true}}, testConfig(), sink)

	require.Len(t, sink.terminals, 1)
	assert.Equal(t, models.ScanStateCompleted, sink.terminals[0].Status)
	assert.Equal(t, models.ScanStateRunning, sink.stateAtTerminal,
		"sink runs before the terminal state is readable")
	assert.False(t, sink.doneAtTerminal, "done closes only after the sink returns")
	assert.Equal(t, models.ScanStateCompleted, session.State())
}

func TestRunObservesCancellationDuringProbe(t *testing.T) {
	session, ctx := startRunning("198.51.100.4", models.ScanTypeBasic)
	sink := &captureSink{}

	cfg := testConfig()
	cfg.Tick = 20 * time.Millisecond

	go session.run(ctx, &fakeProber{}, cfg, sink)

	session.requestCancel()

	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate after cancellation")
	}

	assert.Equal(t, models.ScanStateCancelled, session.State())
}
