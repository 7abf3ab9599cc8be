package scoring

import (
	"math"
	"time"

	"cyberguard-server/internal/models"

	"github.com/google/uuid"
)

// The engine is deterministic: identical input and tables always produce
// the identical verdict. Additions are data changes to these tables, not
// code changes.

var typeMultipliers = map[string]float64{
	models.ThreatTypeMalware:       1.5,
	models.ThreatTypePhishing:      1.3,
	models.ThreatTypeRansomware:    2.0,
	models.ThreatTypeVulnerability: 1.2,
	models.ThreatTypeBreach:        1.8,
}

const defaultMultiplier = 1.0

// High-trust providers earn an additive bonus on top of the multiplied base.
var sourceBonuses = map[string]int{
	"VirusTotal": 20,
	"Shodan":     15,
}

var recommendations = map[string]string{
	models.ThreatTypeMalware:       "Isolate affected hosts and run a full signature scan",
	models.ThreatTypePhishing:      "Block the sender domain and alert targeted users",
	models.ThreatTypeRansomware:    "Disconnect affected systems immediately and engage incident response",
	models.ThreatTypeVulnerability: "Apply vendor patches and verify exposure of the affected service",
	models.ThreatTypeBreach:        "Rotate credentials and review access logs for lateral movement",
	models.ThreatTypeOther:         "Review the indicator and monitor for related activity",
}

var baseMitigationSteps = []string{
	"Document the indicator and its source",
	"Check internal telemetry for matching observables",
	"Update detection rules with the new indicator",
}

var typeMitigationSteps = map[string][]string{
	models.ThreatTypeMalware:       {"Quarantine matching binaries", "Review execution history on exposed hosts"},
	models.ThreatTypePhishing:      {"Purge matching messages from mailboxes", "Reset credentials of users who interacted"},
	models.ThreatTypeRansomware:    {"Verify offline backups are intact", "Segment the affected network zone"},
	models.ThreatTypeVulnerability: {"Schedule patching for affected assets", "Restrict network access to the vulnerable service"},
	models.ThreatTypeBreach:        {"Force password resets for affected accounts", "Audit data access during the exposure window"},
}

// ClassifyThreat maps record severity into one of the four bands.
// Missing severity defaults to 1.
func ClassifyThreat(record *models.ThreatRecord) string {
	severity := record.SeverityOrDefault()
	switch {
	case severity >= 8:
		return models.ClassificationCritical
	case severity >= 6:
		return models.ClassificationHigh
	case severity >= 4:
		return models.ClassificationMedium
	default:
		return models.ClassificationLow
	}
}

// ScoreThreat computes the 0-100 risk score: severity x 10, scaled by the
// per-type multiplier, plus the source trust bonus, clamped to [0,100].
func ScoreThreat(record *models.ThreatRecord) int {
	multiplier, ok := typeMultipliers[record.Type]
	if !ok {
		multiplier = defaultMultiplier
	}

	base := float64(record.SeverityOrDefault()) * 10 * multiplier
	score := int(math.Round(base)) + sourceBonuses[record.Source]

	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// Confidence estimates how much weight the verdict deserves. The additive
// components may sum past 1.0; clamping is the only bound applied.
func Confidence(record *models.ThreatRecord) float64 {
	confidence := 0.5
	if record.Source != "" {
		confidence += 0.2
	}
	if record.Verified {
		confidence += 0.3
	}
	if len(record.Signatures) > 0 {
		confidence += 0.2
	}
	if confidence > 1.0 {
		return 1.0
	}
	return confidence
}

// AnalyzeThreat produces the full verdict for one record. Records without
// an id are assigned a process-unique one so downstream consumers can
// correlate the analysis.
func AnalyzeThreat(record *models.ThreatRecord) *models.ThreatAnalysis {
	threatID := record.ID
	if threatID == "" {
		threatID = uuid.NewString()
	}

	steps := make([]string, 0, len(baseMitigationSteps)+2)
	steps = append(steps, baseMitigationSteps...)
	steps = append(steps, typeMitigationSteps[record.Type]...)

	recommendation, ok := recommendations[record.Type]
	if !ok {
		recommendation = recommendations[models.ThreatTypeOther]
	}

	return &models.ThreatAnalysis{
		ThreatID:        threatID,
		Classification:  ClassifyThreat(record),
		RiskScore:       ScoreThreat(record),
		Confidence:      Confidence(record),
		Recommendation:  recommendation,
		Indicators:      extractIndicators(record),
		MitigationSteps: steps,
		AnalyzedAt:      time.Now().UTC(),
	}
}

func extractIndicators(record *models.ThreatRecord) []models.Indicator {
	indicators := []models.Indicator{}
	if record.Indicators.IP != "" {
		indicators = append(indicators, models.Indicator{Type: "ip", Value: record.Indicators.IP})
	}
	if record.Indicators.Domain != "" {
		indicators = append(indicators, models.Indicator{Type: "domain", Value: record.Indicators.Domain})
	}
	if record.Indicators.Hash != "" {
		indicators = append(indicators, models.Indicator{Type: "hash", Value: record.Indicators.Hash})
	}
	if record.Indicators.URL != "" {
		indicators = append(indicators, models.Indicator{Type: "url", Value: record.Indicators.URL})
	}
	return indicators
}
