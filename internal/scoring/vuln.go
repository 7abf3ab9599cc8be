package scoring

import (
	"math"
	"sort"

	"cyberguard-server/internal/models"
)

var severityWeights = map[string]float64{
	models.SeverityCritical: 10,
	models.SeverityHigh:     7,
	models.SeverityMedium:   4,
	models.SeverityLow:      2,
	models.SeverityInfo:     1,
}

const defaultSeverityWeight = 1

const (
	maxCriticalFindings  = 5
	maxRemediationItems  = 10
	criticalCVSSBoundary = 9.0
)

// ComplianceThresholds configures when each standard is considered passing.
// Thresholds vary by standard and deployment, so they live in configuration
// rather than in the tables above.
type ComplianceThresholds struct {
	PCIDSSMaxCritical     int `mapstructure:"pci_dss_max_critical"`
	ISO27001MaxSevere     int `mapstructure:"iso27001_max_severe"`
	SOC2MaxRiskScore      int `mapstructure:"soc2_max_risk_score"`
	NISTMaxPublicExploits int `mapstructure:"nist_max_public_exploits"`
}

// DefaultComplianceThresholds are the out-of-the-box passing criteria.
func DefaultComplianceThresholds() ComplianceThresholds {
	return ComplianceThresholds{
		PCIDSSMaxCritical:     0,
		ISO27001MaxSevere:     2,
		SOC2MaxRiskScore:      70,
		NISTMaxPublicExploits: 0,
	}
}

// AnalyzeVulnerabilities folds the findings of one scan into an aggregated
// analysis: a fixed-key severity histogram, the top critical findings by
// CVSS, a 0-100 risk score, a prioritized remediation list and a
// compliance snapshot.
func AnalyzeVulnerabilities(findings []models.VulnerabilityFinding, thresholds ComplianceThresholds) *models.VulnerabilityAnalysis {
	breakdown := map[string]int{
		models.SeverityCritical: 0,
		models.SeverityHigh:     0,
		models.SeverityMedium:   0,
		models.SeverityLow:      0,
		models.SeverityInfo:     0,
	}

	weightSum := 0.0
	publicExploits := 0
	for _, f := range findings {
		if _, ok := breakdown[f.Severity]; ok {
			breakdown[f.Severity]++
		}
		if w, ok := severityWeights[f.Severity]; ok {
			weightSum += w
		} else {
			weightSum += defaultSeverityWeight
		}
		if f.Exploitable && f.PublicExploit {
			publicExploits++
		}
	}

	riskScore := 0
	if len(findings) > 0 {
		riskScore = int(math.Round(10 * weightSum / float64(len(findings))))
	}

	analysis := &models.VulnerabilityAnalysis{
		TotalFindings:     len(findings),
		SeverityBreakdown: breakdown,
		CriticalFindings:  criticalFindings(findings),
		RiskScore:         riskScore,
		Remediation:       remediationPriority(findings),
		Compliance: map[string]bool{
			"PCI-DSS":   breakdown[models.SeverityCritical] <= thresholds.PCIDSSMaxCritical,
			"ISO-27001": breakdown[models.SeverityCritical]+breakdown[models.SeverityHigh] <= thresholds.ISO27001MaxSevere,
			"SOC2":      riskScore < thresholds.SOC2MaxRiskScore,
			"NIST-CSF":  publicExploits <= thresholds.NISTMaxPublicExploits,
		},
	}

	return analysis
}

// criticalFindings returns findings that are Critical or carry a CVSS of
// 9.0+, ordered by CVSS descending with encounter order breaking ties,
// capped at five.
func criticalFindings(findings []models.VulnerabilityFinding) []models.VulnerabilityFinding {
	critical := []models.VulnerabilityFinding{}
	for _, f := range findings {
		if f.Severity == models.SeverityCritical || f.CVSSScore >= criticalCVSSBoundary {
			critical = append(critical, f)
		}
	}

	sort.SliceStable(critical, func(i, j int) bool {
		return critical[i].CVSSScore > critical[j].CVSSScore
	})

	if len(critical) > maxCriticalFindings {
		critical = critical[:maxCriticalFindings]
	}
	return critical
}

func remediationPriority(findings []models.VulnerabilityFinding) []models.RemediationItem {
	items := []models.RemediationItem{}
	for _, f := range findings {
		priority := f.CVSSScore * 10
		if f.Exploitable {
			priority += 25
		}
		if f.PublicExploit {
			priority += 20
		}
		if f.AssetCriticality == "high" {
			priority += 15
		}
		items = append(items, models.RemediationItem{Finding: f, Priority: priority})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority > items[j].Priority
	})

	if len(items) > maxRemediationItems {
		items = items[:maxRemediationItems]
	}
	return items
}
