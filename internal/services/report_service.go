package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cyberguard-server/internal/models"
	"cyberguard-server/internal/repositories"
	"cyberguard-server/internal/scoring"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/minio/minio-go/v7"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ScanReport pairs a terminal scan record with the vulnerability
// analysis derived from its findings.
type ScanReport struct {
	Session     models.ScanRecord             `json:"session"`
	Analysis    *models.VulnerabilityAnalysis `json:"analysis"`
	GeneratedAt time.Time                     `json:"generated_at"`
}

// ReportService archives terminal scans to durable storage and builds
// vulnerability reports from their findings. All storage backends are
// optional; with none configured archival is a no-op.
type ReportService struct {
	scanRepo     *repositories.ScanRepository
	influx       influxdb2.Client
	store        *minio.Client
	reportBucket string
	org          string
	influxBucket string
	compliance   scoring.ComplianceThresholds
	log          *logrus.Logger
}

func NewReportService(db *gorm.DB, influx influxdb2.Client, store *minio.Client,
	reportBucket, org, influxBucket string, compliance scoring.ComplianceThresholds, log *logrus.Logger) *ReportService {
	if log == nil {
		log = logrus.New()
	}
	var repo *repositories.ScanRepository
	if db != nil {
		repo = repositories.NewScanRepository(db)
	}
	return &ReportService{
		scanRepo:     repo,
		influx:       influx,
		store:        store,
		reportBucket: reportBucket,
		org:          org,
		influxBucket: influxBucket,
		compliance:   compliance,
		log:          log,
	}
}

// BuildReport derives the vulnerability analysis for a terminal scan.
func (s *ReportService) BuildReport(record models.ScanRecord) *ScanReport {
	return &ScanReport{
		Session:     record,
		Analysis:    scoring.AnalyzeVulnerabilities(record.Findings, s.compliance),
		GeneratedAt: time.Now().UTC(),
	}
}

// ArchiveScan writes a terminal scan to the database, records the run in
// InfluxDB and uploads the full report to object storage. Failures are
// logged; archival never blocks the scan lifecycle.
func (s *ReportService) ArchiveScan(ctx context.Context, record models.ScanRecord) {
	if s.scanRepo != nil {
		if err := s.scanRepo.Create(&record); err != nil {
			s.log.WithError(err).WithField("scan_id", record.ID).Warn("failed to persist scan record")
		}
	}

	if s.influx != nil {
		s.writeScanPoint(ctx, record)
	}

	if s.store != nil && record.Status == models.ScanStateCompleted {
		s.uploadReport(ctx, record)
	}
}

// History lists persisted terminal scans, newest first, optionally
// filtered by target.
func (s *ReportService) History(limit int, target string) ([]models.ScanRecord, error) {
	if s.scanRepo == nil {
		return []models.ScanRecord{}, nil
	}
	return s.scanRepo.List(limit, target, "")
}

// GetArchived looks up a persisted scan record by session id.
func (s *ReportService) GetArchived(id string) (*models.ScanRecord, error) {
	if s.scanRepo == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.scanRepo.GetByID(id)
}

func (s *ReportService) writeScanPoint(ctx context.Context, record models.ScanRecord) {
	writeAPI := s.influx.WriteAPIBlocking(s.org, s.influxBucket)

	critical := 0
	for _, f := range record.Findings {
		if f.Severity == models.SeverityCritical {
			critical++
		}
	}

	point := influxdb2.NewPoint(
		"scan_runs",
		map[string]string{
			"target":    record.Target,
			"scan_type": record.ScanType,
			"status":    record.Status,
		},
		map[string]interface{}{
			"duration_ms":       record.Duration().Milliseconds(),
			"finding_count":     len(record.Findings),
			"critical_findings": critical,
		},
		time.Now().UTC(),
	)

	if err := writeAPI.WritePoint(ctx, point); err != nil {
		s.log.WithError(err).Warn("failed to write scan point to InfluxDB")
	}
}

func (s *ReportService) uploadReport(ctx context.Context, record models.ScanRecord) {
	report := s.BuildReport(record)

	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		s.log.WithError(err).Warn("failed to marshal scan report")
		return
	}

	objectName := fmt.Sprintf("reports/%s.json", record.ID)
	_, err = s.store.PutObject(ctx, s.reportBucket, objectName,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		s.log.WithError(err).WithField("object", objectName).Warn("failed to upload scan report")
		return
	}

	s.log.WithFields(logrus.Fields{
		"scan_id": record.ID,
		"object":  objectName,
	}).Info("scan report archived")
}
