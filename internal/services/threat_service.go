package services

import (
	"context"
	"errors"
	"time"

	"cyberguard-server/internal/metrics"
	"cyberguard-server/internal/models"
	"cyberguard-server/internal/repositories"
	"cyberguard-server/internal/scoring"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrInvalidRecord rejects malformed threat records at the ingestion
// boundary. Malformed shapes are never retried.
var ErrInvalidRecord = errors.New("invalid threat record")

// Broadcaster pushes events to live subscribers.
type Broadcaster interface {
	Broadcast(event string, data interface{})
}

var knownThreatTypes = map[string]bool{
	models.ThreatTypeMalware:       true,
	models.ThreatTypePhishing:      true,
	models.ThreatTypeRansomware:    true,
	models.ThreatTypeVulnerability: true,
	models.ThreatTypeBreach:        true,
	models.ThreatTypeOther:         true,
}

// ThreatService runs the threat ingestion path: score, persist, record
// the time series, fold into the aggregate and push to subscribers.
// Database, InfluxDB and the hub are optional collaborators; the core
// path works with all of them absent.
type ThreatService struct {
	db         *gorm.DB
	threatRepo *repositories.ThreatRepository
	influx     influxdb2.Client
	aggregator *metrics.Aggregator
	hub        Broadcaster
	phishing   scoring.PhishingConfig
	org        string
	bucket     string
	log        *logrus.Logger
}

func NewThreatService(db *gorm.DB, influx influxdb2.Client, aggregator *metrics.Aggregator,
	hub Broadcaster, phishing scoring.PhishingConfig, org, bucket string, log *logrus.Logger) *ThreatService {
	if log == nil {
		log = logrus.New()
	}
	var repo *repositories.ThreatRepository
	if db != nil {
		repo = repositories.NewThreatRepository(db)
	}
	return &ThreatService{
		db:         db,
		threatRepo: repo,
		influx:     influx,
		aggregator: aggregator,
		hub:        hub,
		phishing:   phishing,
		org:        org,
		bucket:     bucket,
		log:        log,
	}
}

// Ingest scores one normalized record and folds it into the live
// aggregate. The record itself is treated as immutable input; derived
// fields are written to the stored copy only.
func (s *ThreatService) Ingest(ctx context.Context, record models.ThreatRecord) (*models.ThreatAnalysis, error) {
	if err := validateRecord(&record); err != nil {
		return nil, err
	}

	// Unknown types degrade to "other" instead of dropping the record.
	if !knownThreatTypes[record.Type] {
		record.Type = models.ThreatTypeOther
	}

	analysis := scoring.AnalyzeThreat(&record)

	record.ID = analysis.ThreatID
	record.Classification = analysis.Classification
	record.RiskScore = analysis.RiskScore
	record.Confidence = analysis.Confidence
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.UpdatedAt = record.CreatedAt

	if s.threatRepo != nil {
		if err := s.threatRepo.Create(&record); err != nil {
			s.log.WithError(err).WithField("threat_id", record.ID).Warn("failed to persist threat record")
		}
	}

	if s.influx != nil {
		s.writeThreatPoint(ctx, record)
	}

	s.aggregator.AddThreat(record)

	if s.hub != nil {
		s.hub.Broadcast("threat:new", analysis)
	}

	return analysis, nil
}

// IngestBatch scores a set of records, skipping invalid ones. Returns the
// analyses of the accepted records and the count rejected.
func (s *ThreatService) IngestBatch(ctx context.Context, records []models.ThreatRecord) ([]*models.ThreatAnalysis, int) {
	analyses := make([]*models.ThreatAnalysis, 0, len(records))
	rejected := 0
	for _, record := range records {
		analysis, err := s.Ingest(ctx, record)
		if err != nil {
			rejected++
			continue
		}
		analyses = append(analyses, analysis)
	}
	return analyses, rejected
}

// Resolve marks a threat resolved in the live window and in storage.
func (s *ThreatService) Resolve(id string) bool {
	resolved := s.aggregator.ResolveThreat(id)

	if s.threatRepo != nil {
		updated, err := s.threatRepo.MarkResolved(id)
		if err != nil {
			s.log.WithError(err).WithField("threat_id", id).Warn("failed to mark threat resolved")
		} else if updated {
			resolved = true
		}
	}
	return resolved
}

// List pages persisted threat records. Without a database only the live
// window exists and listing is unavailable.
func (s *ThreatService) List(page, limit int, threatType, classification, source string) ([]models.ThreatRecord, int64, error) {
	if s.threatRepo == nil {
		return []models.ThreatRecord{}, 0, nil
	}
	return s.threatRepo.List(page, limit, threatType, classification, source)
}

// UnresolvedBacklog counts unresolved threats in storage. Zero without a
// database.
func (s *ThreatService) UnresolvedBacklog() (int64, error) {
	if s.threatRepo == nil {
		return 0, nil
	}
	return s.threatRepo.CountUnresolved()
}

// Analyze runs the scoring engine without mutating any state.
func (s *ThreatService) Analyze(record models.ThreatRecord) (*models.ThreatAnalysis, error) {
	if err := validateRecord(&record); err != nil {
		return nil, err
	}
	if !knownThreatTypes[record.Type] {
		record.Type = models.ThreatTypeOther
	}
	return scoring.AnalyzeThreat(&record), nil
}

// AnalyzePhishing runs phishing detection over raw content.
func (s *ThreatService) AnalyzePhishing(content string) *models.PhishingVerdict {
	return scoring.DetectPhishing(content, s.phishing)
}

// AnalyzePosture evaluates a security profile.
func (s *ThreatService) AnalyzePosture(profile models.SecurityProfile) *models.RecommendationSet {
	return scoring.RecommendSecurityImprovements(profile)
}

func (s *ThreatService) writeThreatPoint(ctx context.Context, record models.ThreatRecord) {
	writeAPI := s.influx.WriteAPIBlocking(s.org, s.bucket)

	point := influxdb2.NewPoint(
		"threat_events",
		map[string]string{
			"type":           record.Type,
			"source":         record.Source,
			"classification": record.Classification,
		},
		map[string]interface{}{
			"risk_score": record.RiskScore,
			"confidence": record.Confidence,
			"severity":   record.SeverityOrDefault(),
		},
		record.CreatedAt,
	)

	if err := writeAPI.WritePoint(ctx, point); err != nil {
		s.log.WithError(err).Warn("failed to write threat point to InfluxDB")
	}
}

func validateRecord(record *models.ThreatRecord) error {
	if record.Type == "" {
		return ErrInvalidRecord
	}
	if record.Severity != nil && (*record.Severity < 0 || *record.Severity > 10) {
		return ErrInvalidRecord
	}
	return nil
}
