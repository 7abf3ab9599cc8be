package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cyberguard-server/internal/models"

	"github.com/google/uuid"
)

// Config holds the scan tunables.
type Config struct {
	// BasicPorts and ComprehensivePorts select the probe set per scan type.
	BasicPorts         []int `mapstructure:"basic_ports"`
	ComprehensivePorts []int `mapstructure:"comprehensive_ports"`

	// HistorySize bounds the in-memory scan history, oldest evicted first.
	HistorySize int `mapstructure:"history_size"`

	// MaxRetries bounds transient host-discovery retries before FAILED.
	MaxRetries int `mapstructure:"max_retries"`

	// Tick paces probe steps; cancellation is observed within one tick.
	Tick time.Duration `mapstructure:"tick"`

	// ProbeTimeout is the per-port dial timeout.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// DefaultConfig returns the standard scan settings.
func DefaultConfig() Config {
	return Config{
		BasicPorts:         []int{21, 22, 23, 80, 443, 445, 3389},
		ComprehensivePorts: []int{21, 22, 23, 25, 80, 110, 139, 443, 445, 1433, 3306, 3389, 5900, 8080},
		HistorySize:        100,
		MaxRetries:         3,
		Tick:               200 * time.Millisecond,
		ProbeTimeout:       2 * time.Second,
	}
}

// EventSink receives session events. Progress ticks are fire-and-forget;
// the terminal event is delivered exactly once per session, synchronously
// from the session goroutine and before the terminal state is observable
// through Record, State or Done.
type EventSink interface {
	ScanProgress(record models.ScanRecord)
	ScanTerminal(record models.ScanRecord)
}

// Session is one in-flight scan against one target. State moves
// QUEUED -> RUNNING -> {COMPLETED, CANCELLED, FAILED}; terminal states
// freeze progress and findings.
type Session struct {
	ID       string
	Target   string
	ScanType string

	mu         sync.RWMutex
	state      string
	progress   int
	phase      string
	startedAt  time.Time
	finishedAt *time.Time
	findings   models.FindingList
	errMsg     string
	claimed    bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(target, scanType string) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Target:   target,
		ScanType: scanType,
		state:    models.ScanStateQueued,
		done:     make(chan struct{}),
	}
}

// Record returns a point-in-time view of the session.
func (s *Session) Record() models.ScanRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recordLocked()
}

func (s *Session) recordLocked() models.ScanRecord {
	findings := make(models.FindingList, len(s.findings))
	copy(findings, s.findings)

	return models.ScanRecord{
		ID:            s.ID,
		Target:        s.Target,
		ScanType:      s.ScanType,
		Status:        s.state,
		Progress:      s.progress,
		StartedAt:     s.startedAt,
		FinishedAt:    s.finishedAt,
		Findings:      findings,
		FindingCount:  len(findings),
		CriticalCount: countCritical(findings),
		ErrorMessage:  s.errMsg,
		CreatedAt:     s.startedAt,
	}
}

func countCritical(findings models.FindingList) int {
	critical := 0
	for _, f := range findings {
		if f.Severity == models.SeverityCritical {
			critical++
		}
	}
	return critical
}

// State returns the current lifecycle state.
func (s *Session) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Phase returns the current human-readable phase text.
func (s *Session) Phase() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// requestCancel asks the session to stop. Cooperative: the run loop
// observes it at the next phase boundary, within one tick.
func (s *Session) requestCancel() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// setProgress advances progress while RUNNING. Progress never decreases
// and is frozen once terminal.
func (s *Session) setProgress(progress int, phase string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.ScanStateRunning || s.claimed {
		return false
	}
	if progress > s.progress {
		s.progress = progress
	}
	s.phase = phase
	return true
}

// beginTerminal claims the terminal transition exactly once and returns
// the record that will be published. The session still reads as RUNNING
// until finishTerminal runs, so bookkeeping driven by the terminal event
// completes before the transition is observable.
func (s *Session) beginTerminal(state string, findings []models.VulnerabilityFinding, errMsg string) (models.ScanRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claimed {
		return models.ScanRecord{}, false
	}
	s.claimed = true

	now := time.Now().UTC()
	record := s.recordLocked()
	record.Status = state
	record.FinishedAt = &now
	record.ErrorMessage = errMsg
	if state == models.ScanStateCompleted {
		record.Progress = 100
		record.Findings = findings
		record.FindingCount = len(findings)
		record.CriticalCount = countCritical(findings)
	}
	return record, true
}

// finishTerminal publishes the claimed terminal record and closes done.
func (s *Session) finishTerminal(record models.ScanRecord) {
	s.mu.Lock()
	s.state = record.Status
	s.progress = record.Progress
	s.findings = record.Findings
	s.finishedAt = record.FinishedAt
	s.errMsg = record.ErrorMessage
	s.mu.Unlock()
	close(s.done)
}

// run executes the scan phases. It is the only writer of terminal state
// during normal operation and always emits exactly one terminal event.
func (s *Session) run(ctx context.Context, prober Prober, cfg Config, sink EventSink) {
	ports := cfg.BasicPorts
	if s.ScanType == models.ScanTypeComprehensive {
		ports = cfg.ComprehensivePorts
	}

	emit := func() {
		if sink != nil {
			sink.ScanProgress(s.Record())
		}
	}
	terminal := func(state string, findings []models.VulnerabilityFinding, errMsg string) {
		record, ok := s.beginTerminal(state, findings, errMsg)
		if !ok {
			return
		}
		if sink != nil {
			sink.ScanTerminal(record)
		}
		s.finishTerminal(record)
	}

	// Phase: host discovery, with bounded retries on transient failures.
	s.setProgress(5, "host discovery")
	emit()

	var discoverErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			terminal(models.ScanStateCancelled, nil, "")
			return
		}
		if discoverErr = prober.Reachable(ctx, s.Target); discoverErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			terminal(models.ScanStateCancelled, nil, "")
			return
		case <-time.After(cfg.Tick):
		}
	}
	if discoverErr != nil {
		terminal(models.ScanStateFailed, nil, fmt.Sprintf("target unreachable after %d retries: %v", cfg.MaxRetries, discoverErr))
		return
	}

	s.setProgress(10, "host discovery")
	emit()

	// Phase: port probe. Progress advances proportionally across ports.
	open := []int{}
	for i, port := range ports {
		select {
		case <-ctx.Done():
			terminal(models.ScanStateCancelled, nil, "")
			return
		case <-time.After(cfg.Tick):
		}

		if prober.Probe(ctx, s.Target, port, cfg.ProbeTimeout) {
			open = append(open, port)
		}

		progress := 10 + (75*(i+1))/len(ports)
		s.setProgress(progress, fmt.Sprintf("port probe %d/%d (%s)", i+1, len(ports), serviceName(port)))
		emit()
	}

	// Phase: service analysis.
	if ctx.Err() != nil {
		terminal(models.ScanStateCancelled, nil, "")
		return
	}
	s.setProgress(90, "service analysis")
	emit()

	terminal(models.ScanStateCompleted, findingsForPorts(open), "")
}
