package scoring

import (
	"testing"

	"cyberguard-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeVulnerabilitiesEmpty(t *testing.T) {
	analysis := AnalyzeVulnerabilities(nil, DefaultComplianceThresholds())
	require.NotNil(t, analysis)

	assert.Equal(t, 0, analysis.TotalFindings)
	assert.Equal(t, 0, analysis.RiskScore)
	assert.Empty(t, analysis.CriticalFindings)
	assert.Empty(t, analysis.Remediation)

	// breakdown always carries every severity key
	for _, sev := range []string{
		models.SeverityCritical, models.SeverityHigh, models.SeverityMedium,
		models.SeverityLow, models.SeverityInfo,
	} {
		count, ok := analysis.SeverityBreakdown[sev]
		assert.True(t, ok, "missing key %s", sev)
		assert.Equal(t, 0, count)
	}

	// nothing found means everything passes
	for standard, pass := range analysis.Compliance {
		assert.True(t, pass, "standard %s", standard)
	}
}

func TestAnalyzeVulnerabilitiesRiskScore(t *testing.T) {
	findings := []models.VulnerabilityFinding{
		{Title: "a", Severity: models.SeverityCritical, CVSSScore: 9.8},
		{Title: "b", Severity: models.SeverityInfo, CVSSScore: 1.0},
	}

	analysis := AnalyzeVulnerabilities(findings, DefaultComplianceThresholds())

	// round(10 * (10+1) / 2) = 55
	assert.Equal(t, 55, analysis.RiskScore)
	assert.Equal(t, 2, analysis.TotalFindings)
	assert.Equal(t, 1, analysis.SeverityBreakdown[models.SeverityCritical])
	assert.Equal(t, 1, analysis.SeverityBreakdown[models.SeverityInfo])
}

func TestCriticalFindingsOrderedByCVSS(t *testing.T) {
	findings := []models.VulnerabilityFinding{
		{Title: "smb", Severity: models.SeverityCritical, CVSSScore: 9.0},
		{Title: "telnet", Severity: models.SeverityCritical, CVSSScore: 9.9},
		{Title: "rdp", Severity: models.SeverityHigh, CVSSScore: 9.5},
		{Title: "http-alt", Severity: models.SeverityLow, CVSSScore: 3.7},
	}

	analysis := AnalyzeVulnerabilities(findings, DefaultComplianceThresholds())

	require.Len(t, analysis.CriticalFindings, 3)
	assert.Equal(t, "telnet", analysis.CriticalFindings[0].Title)
	assert.Equal(t, "rdp", analysis.CriticalFindings[1].Title)
	assert.Equal(t, "smb", analysis.CriticalFindings[2].Title)
}

func TestCriticalFindingsCapped(t *testing.T) {
	findings := make([]models.VulnerabilityFinding, 8)
	for i := range findings {
		findings[i] = models.VulnerabilityFinding{Severity: models.SeverityCritical, CVSSScore: 9.1}
	}

	analysis := AnalyzeVulnerabilities(findings, DefaultComplianceThresholds())
	assert.Len(t, analysis.CriticalFindings, 5)
}

func TestComplianceThresholds(t *testing.T) {
	findings := []models.VulnerabilityFinding{
		{Severity: models.SeverityCritical, CVSSScore: 9.8, Exploitable: true, PublicExploit: true},
	}

	analysis := AnalyzeVulnerabilities(findings, DefaultComplianceThresholds())

	assert.False(t, analysis.Compliance["PCI-DSS"], "any critical fails PCI-DSS")
	assert.False(t, analysis.Compliance["NIST-CSF"], "public exploit fails NIST-CSF")
	assert.False(t, analysis.Compliance["SOC2"], "risk score 100 exceeds the SOC2 bound")
	assert.True(t, analysis.Compliance["ISO-27001"], "one severe finding is within the ISO bound")
}

func TestComplianceCustomThresholds(t *testing.T) {
	findings := []models.VulnerabilityFinding{
		{Severity: models.SeverityCritical, CVSSScore: 9.8},
	}
	relaxed := ComplianceThresholds{
		PCIDSSMaxCritical:     1,
		ISO27001MaxSevere:     5,
		SOC2MaxRiskScore:      101,
		NISTMaxPublicExploits: 1,
	}

	analysis := AnalyzeVulnerabilities(findings, relaxed)
	for standard, pass := range analysis.Compliance {
		assert.True(t, pass, "standard %s", standard)
	}
}

func TestRemediationPriorityOrdering(t *testing.T) {
	findings := []models.VulnerabilityFinding{
		{Title: "low", CVSSScore: 3.0},
		{Title: "wormable", CVSSScore: 9.8, Exploitable: true, PublicExploit: true, AssetCriticality: "high"},
		{Title: "exploitable", CVSSScore: 7.5, Exploitable: true},
	}

	analysis := AnalyzeVulnerabilities(findings, DefaultComplianceThresholds())

	require.Len(t, analysis.Remediation, 3)
	assert.Equal(t, "wormable", analysis.Remediation[0].Finding.Title)
	assert.Equal(t, "exploitable", analysis.Remediation[1].Finding.Title)
	assert.Equal(t, "low", analysis.Remediation[2].Finding.Title)

	for i := 1; i < len(analysis.Remediation); i++ {
		assert.GreaterOrEqual(t, analysis.Remediation[i-1].Priority, analysis.Remediation[i].Priority)
	}
}
