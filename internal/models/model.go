package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// JSONB type for PostgreSQL JSONB fields
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONB)
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}
}

// Threat types accepted from the indicator normalizer.
const (
	ThreatTypeMalware       = "malware"
	ThreatTypePhishing      = "phishing"
	ThreatTypeRansomware    = "ransomware"
	ThreatTypeVulnerability = "vulnerability"
	ThreatTypeBreach        = "breach"
	ThreatTypeOther         = "other"
)

// Classification bands produced by the scoring engine.
const (
	ClassificationCritical = "CRITICAL"
	ClassificationHigh     = "HIGH"
	ClassificationMedium   = "MEDIUM"
	ClassificationLow      = "LOW"
)

// IndicatorSet holds the observables attached to a threat record.
type IndicatorSet struct {
	IP     string `json:"ip,omitempty" gorm:"size:45"`
	Domain string `json:"domain,omitempty" gorm:"size:255"`
	Hash   string `json:"hash,omitempty" gorm:"size:128"`
	URL    string `json:"url,omitempty" gorm:"size:2048"`
}

// ThreatRecord is a normalized indicator handed to the core by an intel
// source. Scoring never mutates the record; derived fields are written
// once at ingest time.
type ThreatRecord struct {
	ID         string         `json:"id" gorm:"primary_key;size:64"`
	Type       string         `json:"type" gorm:"not null;size:20;index"`
	Severity   *int           `json:"severity,omitempty" gorm:"check:severity >= 0 AND severity <= 10"`
	Source     string         `json:"source" gorm:"size:100;index"`
	Verified   bool           `json:"verified" gorm:"default:false"`
	Signatures pq.StringArray `json:"signatures,omitempty" gorm:"type:text[]"`
	Indicators IndicatorSet   `json:"indicators" gorm:"embedded;embeddedPrefix:indicator_"`
	Title      string         `json:"title" gorm:"size:500"`
	Metadata   JSONB          `json:"metadata,omitempty" gorm:"type:jsonb"`

	// Derived at ingest time from the scoring engine.
	Classification string  `json:"classification" gorm:"size:10;index"`
	RiskScore      int     `json:"risk_score" gorm:"default:0"`
	Confidence     float64 `json:"confidence" gorm:"type:decimal(3,2);default:0.0"`

	Resolved   bool       `json:"resolved" gorm:"default:false;index"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// SeverityOrDefault returns the record severity, defaulting to 1 when absent.
func (t *ThreatRecord) SeverityOrDefault() int {
	if t.Severity == nil {
		return 1
	}
	return *t.Severity
}

func (t *ThreatRecord) IsCritical() bool {
	return t.Classification == ClassificationCritical
}

// Indicator is a typed key/value pair surfaced in a threat analysis.
type Indicator struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ThreatAnalysis is the explainable verdict derived from one ThreatRecord.
type ThreatAnalysis struct {
	ThreatID        string      `json:"threat_id"`
	Classification  string      `json:"classification"`
	RiskScore       int         `json:"risk_score"`
	Confidence      float64     `json:"confidence"`
	Recommendation  string      `json:"recommendation"`
	Indicators      []Indicator `json:"indicators"`
	MitigationSteps []string    `json:"mitigation_steps"`
	AnalyzedAt      time.Time   `json:"analyzed_at"`
}

// Vulnerability finding severities.
const (
	SeverityCritical = "Critical"
	SeverityHigh     = "High"
	SeverityMedium   = "Medium"
	SeverityLow      = "Low"
	SeverityInfo     = "Info"
)

// VulnerabilityFinding is produced by a completed scan session.
type VulnerabilityFinding struct {
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	Severity         string  `json:"severity"`
	CVSSScore        float64 `json:"cvss_score,omitempty"`
	Exploitable      bool    `json:"exploitable"`
	PublicExploit    bool    `json:"public_exploit"`
	AssetCriticality string  `json:"asset_criticality,omitempty"`
	Port             int     `json:"port,omitempty"`
	Service          string  `json:"service,omitempty"`
}

// FindingList stores scan findings as a JSONB column.
type FindingList []VulnerabilityFinding

func (f FindingList) Value() (driver.Value, error) {
	if len(f) == 0 {
		return "[]", nil
	}
	return json.Marshal(f)
}

func (f *FindingList) Scan(value interface{}) error {
	if value == nil {
		*f = FindingList{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("cannot scan %T into FindingList", value)
	}
}

// RemediationItem is one prioritized entry in a vulnerability analysis.
type RemediationItem struct {
	Finding  VulnerabilityFinding `json:"finding"`
	Priority float64              `json:"priority"`
}

// VulnerabilityAnalysis aggregates the findings of one scan.
type VulnerabilityAnalysis struct {
	TotalFindings     int                    `json:"total_findings"`
	SeverityBreakdown map[string]int         `json:"severity_breakdown"`
	CriticalFindings  []VulnerabilityFinding `json:"critical_findings"`
	RiskScore         int                    `json:"risk_score"`
	Remediation       []RemediationItem      `json:"remediation"`
	Compliance        map[string]bool        `json:"compliance"`
}

// Scan session states. Terminal states are sinks.
const (
	ScanStateQueued    = "QUEUED"
	ScanStateRunning   = "RUNNING"
	ScanStateCompleted = "COMPLETED"
	ScanStateCancelled = "CANCELLED"
	ScanStateFailed    = "FAILED"
)

// Scan types.
const (
	ScanTypeBasic         = "basic"
	ScanTypeComprehensive = "comprehensive"
)

// ScanRecord is the persisted view of a scan session. Live sessions are
// tracked in memory by the scan manager; a record is written on every
// terminal transition, including FAILED ones, so the audit trail survives.
type ScanRecord struct {
	ID            string      `json:"id" gorm:"primary_key;size:36"`
	Target        string      `json:"target" gorm:"not null;size:255;index"`
	ScanType      string      `json:"scan_type" gorm:"size:20"`
	Status        string      `json:"status" gorm:"size:20;index"`
	Progress      int         `json:"progress" gorm:"default:0;check:progress >= 0 AND progress <= 100"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    *time.Time  `json:"finished_at,omitempty"`
	Findings      FindingList `json:"findings" gorm:"type:jsonb;default:'[]'"`
	FindingCount  int         `json:"finding_count" gorm:"default:0"`
	CriticalCount int         `json:"critical_count" gorm:"default:0"`
	ErrorMessage  string      `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt     time.Time   `json:"created_at" gorm:"index"`
}

func (s *ScanRecord) IsTerminal() bool {
	return s.Status == ScanStateCompleted || s.Status == ScanStateCancelled || s.Status == ScanStateFailed
}

// Duration returns the wall time of the scan, zero while still running.
func (s *ScanRecord) Duration() time.Duration {
	if s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// TrendPoint is one hourly bucket in the threat trend series.
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Hour      int       `json:"hour"`
	Threats   int       `json:"threats"`
}

// ActivityItem is one entry in the recent-activity feed.
type ActivityItem struct {
	Title     string    `json:"title"`
	Severity  string    `json:"severity"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// MetricsSnapshot is the immutable process-wide aggregate. It is replaced
// atomically on every recompute; readers never see a partial update.
type MetricsSnapshot struct {
	ActiveThreats        int            `json:"active_threats"`
	CriticalAlerts       int            `json:"critical_alerts"`
	SystemHealth         int            `json:"system_health"`
	NetworkActivity      int            `json:"network_activity"`
	ThreatTrends         []TrendPoint   `json:"threat_trends"`
	SeverityDistribution map[string]int `json:"severity_distribution"`
	SourceBreakdown      map[string]int `json:"source_breakdown"`
	RecentActivity       []ActivityItem `json:"recent_activity"`
	Timestamp            time.Time      `json:"timestamp"`
}

// PhishingIndicator is one weighted signal found in analyzed content.
type PhishingIndicator struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

// PhishingVerdict is the outcome of phishing content analysis.
type PhishingVerdict struct {
	IsPhishing   bool                `json:"is_phishing"`
	Score        float64             `json:"score"`
	RiskCategory string              `json:"risk_category"`
	Indicators   []PhishingIndicator `json:"indicators"`
}

// SecurityProfile describes the risk posture of an environment.
type SecurityProfile struct {
	Antivirus       bool `json:"antivirus"`
	Firewall        bool `json:"firewall"`
	Patching        bool `json:"patching"`
	PasswordManager bool `json:"password_manager"`
	TwoFactor       bool `json:"two_factor"`
	Backup          bool `json:"backup"`
}

// Recommendation is one improvement from the posture catalog.
type Recommendation struct {
	Area        string `json:"area"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
	Effort      string `json:"effort"`
	Impact      string `json:"impact"`
}

// RecommendationSet is the ordered outcome of a posture evaluation.
type RecommendationSet struct {
	OverallRisk     string           `json:"overall_risk"`
	RiskPoints      int              `json:"risk_points"`
	MissingControls int              `json:"missing_controls"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Custom table names
func (ThreatRecord) TableName() string { return "threat_records" }
func (ScanRecord) TableName() string   { return "scan_history" }
