package scoring

import (
	"testing"

	"cyberguard-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sevPtr(v int) *int { return &v }

func TestClassifyThreatBands(t *testing.T) {
	cases := []struct {
		severity *int
		want     string
	}{
		{sevPtr(10), models.ClassificationCritical},
		{sevPtr(8), models.ClassificationCritical},
		{sevPtr(7), models.ClassificationHigh},
		{sevPtr(6), models.ClassificationHigh},
		{sevPtr(5), models.ClassificationMedium},
		{sevPtr(4), models.ClassificationMedium},
		{sevPtr(3), models.ClassificationLow},
		{sevPtr(0), models.ClassificationLow},
		{nil, models.ClassificationLow},
	}

	for _, tc := range cases {
		record := &models.ThreatRecord{Type: models.ThreatTypeMalware, Severity: tc.severity}
		assert.Equal(t, tc.want, ClassifyThreat(record))
	}
}

func TestScoreThreatFormula(t *testing.T) {
	// severity x 10 x multiplier, then source bonus, then clamp
	cases := []struct {
		name     string
		record   models.ThreatRecord
		expected int
	}{
		{
			name:     "vulnerability without source",
			record:   models.ThreatRecord{Type: models.ThreatTypeVulnerability, Severity: sevPtr(5)},
			expected: 60,
		},
		{
			name:     "malware with shodan bonus",
			record:   models.ThreatRecord{Type: models.ThreatTypeMalware, Severity: sevPtr(4), Source: "Shodan"},
			expected: 75,
		},
		{
			name:     "ransomware clamps at 100",
			record:   models.ThreatRecord{Type: models.ThreatTypeRansomware, Severity: sevPtr(9), Source: "VirusTotal"},
			expected: 100,
		},
		{
			name:     "unknown type uses neutral multiplier",
			record:   models.ThreatRecord{Type: models.ThreatTypeOther, Severity: sevPtr(6)},
			expected: 60,
		},
		{
			name:     "missing severity defaults to one",
			record:   models.ThreatRecord{Type: models.ThreatTypeMalware},
			expected: 15,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ScoreThreat(&tc.record))
		})
	}
}

func TestScoreThreatAlwaysWithinBounds(t *testing.T) {
	types := []string{
		models.ThreatTypeMalware, models.ThreatTypePhishing, models.ThreatTypeRansomware,
		models.ThreatTypeVulnerability, models.ThreatTypeBreach, models.ThreatTypeOther, "unmapped",
	}
	sources := []string{"", "VirusTotal", "Shodan", "internal"}

	for _, typ := range types {
		for _, source := range sources {
			for severity := 0; severity <= 10; severity++ {
				record := &models.ThreatRecord{Type: typ, Severity: sevPtr(severity), Source: source}
				score := ScoreThreat(record)
				assert.GreaterOrEqual(t, score, 0, "type %s source %s severity %d", typ, source, severity)
				assert.LessOrEqual(t, score, 100, "type %s source %s severity %d", typ, source, severity)
			}
		}
	}
}

func TestConfidence(t *testing.T) {
	base := &models.ThreatRecord{Type: models.ThreatTypeMalware}
	assert.InDelta(t, 0.5, Confidence(base), 0.0001)

	sourced := &models.ThreatRecord{Type: models.ThreatTypeMalware, Source: "Shodan"}
	assert.InDelta(t, 0.7, Confidence(sourced), 0.0001)

	// all contributions sum past 1.0 and clamp
	full := &models.ThreatRecord{
		Type:       models.ThreatTypeMalware,
		Source:     "VirusTotal",
		Verified:   true,
		Signatures: []string{"sig-1"},
	}
	assert.InDelta(t, 1.0, Confidence(full), 0.0001)
}

func TestAnalyzeThreatRansomware(t *testing.T) {
	record := &models.ThreatRecord{
		ID:         "threat-1",
		Type:       models.ThreatTypeRansomware,
		Severity:   sevPtr(9),
		Source:     "VirusTotal",
		Verified:   true,
		Signatures: []string{"lockbit-v3"},
		Indicators: models.IndicatorSet{
			IP:   "203.0.113.7",
			Hash: "d41d8cd98f00b204e9800998ecf8427e",
		},
	}

	analysis := AnalyzeThreat(record)
	require.NotNil(t, analysis)

	assert.Equal(t, "threat-1", analysis.ThreatID)
	assert.Equal(t, models.ClassificationCritical, analysis.Classification)
	assert.Equal(t, 100, analysis.RiskScore)
	assert.InDelta(t, 1.0, analysis.Confidence, 0.0001)
	assert.Contains(t, analysis.Recommendation, "incident response")
	assert.False(t, analysis.AnalyzedAt.IsZero())

	require.Len(t, analysis.Indicators, 2)
	assert.Equal(t, "ip", analysis.Indicators[0].Type)
	assert.Equal(t, "203.0.113.7", analysis.Indicators[0].Value)
	assert.Equal(t, "hash", analysis.Indicators[1].Type)

	// base steps first, then the type-specific ones
	require.GreaterOrEqual(t, len(analysis.MitigationSteps), 5)
	assert.Contains(t, analysis.MitigationSteps, "Verify offline backups are intact")
}

func TestAnalyzeThreatAssignsID(t *testing.T) {
	record := &models.ThreatRecord{Type: models.ThreatTypeMalware, Severity: sevPtr(5)}

	first := AnalyzeThreat(record)
	second := AnalyzeThreat(record)

	assert.NotEmpty(t, first.ThreatID)
	assert.NotEmpty(t, second.ThreatID)
	assert.NotEqual(t, first.ThreatID, second.ThreatID)
}

func TestAnalyzeThreatUnknownTypeRecommendation(t *testing.T) {
	record := &models.ThreatRecord{Type: "unmapped", Severity: sevPtr(5)}

	analysis := AnalyzeThreat(record)
	assert.Equal(t, "Review the indicator and monitor for related activity", analysis.Recommendation)
}

func TestAnalyzeThreatDeterministic(t *testing.T) {
	record := &models.ThreatRecord{
		ID:       "fixed",
		Type:     models.ThreatTypeBreach,
		Severity: sevPtr(7),
		Source:   "Shodan",
	}

	first := AnalyzeThreat(record)
	second := AnalyzeThreat(record)

	assert.Equal(t, first.Classification, second.Classification)
	assert.Equal(t, first.RiskScore, second.RiskScore)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.MitigationSteps, second.MitigationSteps)
}
