package scan

import (
	"context"
	"net"
	"regexp"
	"sync"
	"time"

	"cyberguard-server/internal/metrics"
	"cyberguard-server/internal/models"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,62})?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,62})?)*$`)

// Broadcaster pushes scan events to live subscribers. Loss of a progress
// tick is tolerable; the terminal event also reaches the aggregator
// synchronously, independent of the broadcast.
type Broadcaster interface {
	Broadcast(event string, data interface{})
}

// Archiver persists terminal scan records to durable storage (database,
// time-series sink, report objects). Invoked off the scan goroutine.
type Archiver interface {
	ArchiveScan(ctx context.Context, record models.ScanRecord)
}

// Manager tracks live sessions and the bounded scan history. At most one
// non-terminal session may exist per target per manager instance.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	prober   Prober
	byTarget map[string]*Session
	byID     map[string]*Session
	recent   *lru.Cache[string, models.ScanRecord]
	history  []models.ScanRecord

	aggregator *metrics.Aggregator
	hub        Broadcaster
	archiver   Archiver
	log        *logrus.Logger
}

func NewManager(cfg Config, prober Prober, aggregator *metrics.Aggregator, hub Broadcaster, archiver Archiver, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.New()
	}
	if prober == nil {
		prober = NewConnectProber()
	}
	recent, _ := lru.New[string, models.ScanRecord](cfg.HistorySize)
	return &Manager{
		cfg:        cfg,
		prober:     prober,
		byTarget:   make(map[string]*Session),
		byID:       make(map[string]*Session),
		recent:     recent,
		history:    []models.ScanRecord{},
		aggregator: aggregator,
		hub:        hub,
		archiver:   archiver,
		log:        log,
	}
}

// Start validates the request and launches a new session. The scan runs in
// the background; the returned session handle is already RUNNING.
func (m *Manager) Start(target, scanType string) (*Session, error) {
	if !validTarget(target) {
		return nil, ErrInvalidTarget
	}
	if scanType == "" {
		scanType = models.ScanTypeBasic
	}
	if scanType != models.ScanTypeBasic && scanType != models.ScanTypeComprehensive {
		return nil, ErrInvalidScanType
	}

	m.mu.Lock()
	if _, exists := m.byTarget[target]; exists {
		m.mu.Unlock()
		return nil, ErrScanAlreadyRunning
	}

	session := newSession(target, scanType)
	ctx, cancel := context.WithCancel(context.Background())

	session.mu.Lock()
	session.state = models.ScanStateRunning
	session.startedAt = time.Now().UTC()
	session.cancel = cancel
	session.mu.Unlock()

	m.byTarget[target] = session
	m.byID[session.ID] = session
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"session_id": session.ID,
		"target":     target,
		"scan_type":  scanType,
	}).Info("scan started")

	go session.run(ctx, m.prober, m.cfg, m)
	return session, nil
}

// Cancel requests cancellation of a RUNNING session. Cancelling a session
// that already reached a terminal state is a no-op, not an error.
func (m *Manager) Cancel(sessionID string) error {
	m.mu.Lock()
	session, live := m.byID[sessionID]
	var known bool
	if !live {
		_, known = m.recent.Get(sessionID)
	}
	m.mu.Unlock()

	if live {
		session.requestCancel()
		return nil
	}
	if known {
		return nil
	}
	return ErrSessionNotFound
}

// Get returns the current record for a live or recently finished session.
func (m *Manager) Get(sessionID string) (models.ScanRecord, error) {
	m.mu.Lock()
	if session, ok := m.byID[sessionID]; ok {
		m.mu.Unlock()
		return session.Record(), nil
	}
	record, ok := m.recent.Get(sessionID)
	m.mu.Unlock()

	if ok {
		return record, nil
	}
	return models.ScanRecord{}, ErrSessionNotFound
}

// List returns records for all live sessions, optionally filtered by target.
func (m *Manager) List(target string) []models.ScanRecord {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		if target == "" || s.Target == target {
			sessions = append(sessions, s)
		}
	}
	m.mu.Unlock()

	records := make([]models.ScanRecord, 0, len(sessions))
	for _, s := range sessions {
		records = append(records, s.Record())
	}
	return records
}

// History returns terminal records, newest first, capped at limit.
func (m *Manager) History(limit int) []models.ScanRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	records := make([]models.ScanRecord, 0, limit)
	for i := len(m.history) - 1; i >= len(m.history)-limit; i-- {
		records = append(records, m.history[i])
	}
	return records
}

// ScanProgress implements EventSink. Fire-and-forget to the push channel.
func (m *Manager) ScanProgress(record models.ScanRecord) {
	if m.hub != nil {
		m.hub.Broadcast("scan:progress", record)
	}
}

// ScanTerminal implements EventSink. Runs synchronously on the session
// goroutine before the terminal state is published: once a caller observes
// the session as terminal, the aggregate already reflects it and the
// target is free for a new scan.
func (m *Manager) ScanTerminal(record models.ScanRecord) {
	m.mu.Lock()
	delete(m.byTarget, record.Target)
	delete(m.byID, record.ID)
	m.recent.Add(record.ID, record)
	m.history = append(m.history, record)
	if len(m.history) > m.cfg.HistorySize {
		m.history = m.history[len(m.history)-m.cfg.HistorySize:]
	}
	m.mu.Unlock()

	if m.aggregator != nil {
		m.aggregator.AddScan(record)
	}

	m.log.WithFields(logrus.Fields{
		"session_id": record.ID,
		"target":     record.Target,
		"status":     record.Status,
		"findings":   record.FindingCount,
	}).Info("scan finished")

	if m.hub != nil {
		m.hub.Broadcast("scan:complete", record)
	}

	if m.archiver != nil {
		go func(rec models.ScanRecord) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			m.archiver.ArchiveScan(ctx, rec)
		}(record)
	}
}

func validTarget(target string) bool {
	if target == "" || len(target) > 253 {
		return false
	}
	if net.ParseIP(target) != nil {
		return true
	}
	return hostnamePattern.MatchString(target)
}
