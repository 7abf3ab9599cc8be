package scoring

import (
	"sort"

	"cyberguard-server/internal/models"
)

const (
	riskPointsPerGap      = 15
	maxRecommendations    = 10
	postureCriticalPoints = 70
	postureHighPoints     = 50
	postureMediumPoints   = 30
)

// Fixed catalog of improvements keyed by the missing capability.
var postureCatalog = map[string]models.Recommendation{
	"antivirus": {
		Area:        "antivirus",
		Title:       "Deploy endpoint protection",
		Description: "Install and centrally manage antivirus on all endpoints",
		Priority:    9,
		Effort:      "medium",
		Impact:      "high",
	},
	"firewall": {
		Area:        "firewall",
		Title:       "Enable perimeter and host firewalls",
		Description: "Enforce default-deny inbound rules at the perimeter and on hosts",
		Priority:    8,
		Effort:      "medium",
		Impact:      "high",
	},
	"patching": {
		Area:        "patching",
		Title:       "Establish a patch cadence",
		Description: "Apply OS and application security updates on a fixed schedule",
		Priority:    10,
		Effort:      "high",
		Impact:      "high",
	},
	"password_manager": {
		Area:        "password_manager",
		Title:       "Roll out a password manager",
		Description: "Provision a team password manager and retire shared spreadsheets",
		Priority:    6,
		Effort:      "low",
		Impact:      "medium",
	},
	"two_factor": {
		Area:        "two_factor",
		Title:       "Require two-factor authentication",
		Description: "Enforce 2FA on email, VPN and administrative accounts",
		Priority:    9,
		Effort:      "low",
		Impact:      "high",
	},
	"backup": {
		Area:        "backup",
		Title:       "Implement tested backups",
		Description: "Schedule offline backups and verify restores quarterly",
		Priority:    7,
		Effort:      "medium",
		Impact:      "high",
	},
}

// RecommendSecurityImprovements evaluates the posture flags and emits one
// catalog recommendation per missing capability, ordered by priority.
// Overall risk is a step function of the number of gaps.
func RecommendSecurityImprovements(profile models.SecurityProfile) *models.RecommendationSet {
	missing := []string{}
	if !profile.Antivirus {
		missing = append(missing, "antivirus")
	}
	if !profile.Firewall {
		missing = append(missing, "firewall")
	}
	if !profile.Patching {
		missing = append(missing, "patching")
	}
	if !profile.PasswordManager {
		missing = append(missing, "password_manager")
	}
	if !profile.TwoFactor {
		missing = append(missing, "two_factor")
	}
	if !profile.Backup {
		missing = append(missing, "backup")
	}

	recs := make([]models.Recommendation, 0, len(missing))
	for _, area := range missing {
		recs = append(recs, postureCatalog[area])
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority > recs[j].Priority
	})
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}

	points := len(missing) * riskPointsPerGap

	return &models.RecommendationSet{
		OverallRisk:     postureRisk(points),
		RiskPoints:      points,
		MissingControls: len(missing),
		Recommendations: recs,
	}
}

func postureRisk(points int) string {
	switch {
	case points >= postureCriticalPoints:
		return models.ClassificationCritical
	case points >= postureHighPoints:
		return models.ClassificationHigh
	case points >= postureMediumPoints:
		return models.ClassificationMedium
	default:
		return models.ClassificationLow
	}
}
