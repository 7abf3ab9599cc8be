package scoring

import (
	"testing"

	"cyberguard-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommendSecurityImprovementsAllMissing(t *testing.T) {
	set := RecommendSecurityImprovements(models.SecurityProfile{})
	require.NotNil(t, set)

	assert.Equal(t, models.ClassificationCritical, set.OverallRisk)
	assert.Equal(t, 90, set.RiskPoints)
	assert.Equal(t, 6, set.MissingControls)
	require.Len(t, set.Recommendations, 6)

	// highest priority gap first, ties keep catalog evaluation order
	assert.Equal(t, "patching", set.Recommendations[0].Area)
	for i := 1; i < len(set.Recommendations); i++ {
		assert.GreaterOrEqual(t, set.Recommendations[i-1].Priority, set.Recommendations[i].Priority)
	}
}

func TestRecommendSecurityImprovementsFullProfile(t *testing.T) {
	profile := models.SecurityProfile{
		Antivirus:       true,
		Firewall:        true,
		Patching:        true,
		PasswordManager: true,
		TwoFactor:       true,
		Backup:          true,
	}

	set := RecommendSecurityImprovements(profile)

	assert.Equal(t, models.ClassificationLow, set.OverallRisk)
	assert.Zero(t, set.RiskPoints)
	assert.Zero(t, set.MissingControls)
	assert.Empty(t, set.Recommendations)
}

func TestRecommendSecurityImprovementsRiskBands(t *testing.T) {
	// two gaps: 30 points
	twoGaps := models.SecurityProfile{
		Antivirus: true, Firewall: true, Patching: true, PasswordManager: true,
	}
	assert.Equal(t, models.ClassificationMedium, RecommendSecurityImprovements(twoGaps).OverallRisk)

	// four gaps: 60 points
	fourGaps := models.SecurityProfile{Antivirus: true, Firewall: true}
	assert.Equal(t, models.ClassificationHigh, RecommendSecurityImprovements(fourGaps).OverallRisk)

	// one gap: 15 points
	oneGap := models.SecurityProfile{
		Antivirus: true, Firewall: true, Patching: true, PasswordManager: true, TwoFactor: true,
	}
	assert.Equal(t, models.ClassificationLow, RecommendSecurityImprovements(oneGap).OverallRisk)
}
