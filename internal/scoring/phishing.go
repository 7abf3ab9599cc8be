package scoring

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"cyberguard-server/internal/models"
)

// Phishing indicator weights. The sum is intentionally not normalized;
// the only bound is the decision threshold.
const (
	weightUrgency         = 0.3
	weightGenericGreeting = 0.2
	weightSuspiciousURL   = 0.4
	weightSpoofedSender   = 0.5

	phishingThreshold = 0.7
)

var urgencyPhrases = []string{
	"urgent",
	"immediately",
	"act now",
	"verify your account",
	"account suspended",
	"final notice",
	"within 24 hours",
}

var genericGreetings = []string{
	"dear customer",
	"dear user",
	"dear member",
	"dear account holder",
}

var shortenerDomains = []string{
	"bit.ly",
	"tinyurl.com",
	"goo.gl",
	"t.co",
	"ow.ly",
}

var urlPattern = regexp.MustCompile(`https?://([^\s/"'<>]+)`)

// PhishingConfig carries the tunable parts of phishing detection: the set
// of legitimate domains frequently impersonated by look-alike senders.
type PhishingConfig struct {
	SpoofedDomains []string `mapstructure:"spoofed_domains"`
}

// DefaultPhishingConfig covers commonly impersonated providers.
func DefaultPhishingConfig() PhishingConfig {
	return PhishingConfig{
		SpoofedDomains: []string{"paypal.com", "microsoft.com", "google.com", "apple.com", "amazon.com"},
	}
}

// DetectPhishing extracts weighted indicators from message content and
// sums their weights. The verdict flips at a score above 0.7; the risk
// category bands at 0.8/0.6/0.4.
func DetectPhishing(content string, cfg PhishingConfig) *models.PhishingVerdict {
	lower := strings.ToLower(content)
	indicators := []models.PhishingIndicator{}

	for _, phrase := range urgencyPhrases {
		if strings.Contains(lower, phrase) {
			indicators = append(indicators, models.PhishingIndicator{
				Type:        "urgency_language",
				Description: fmt.Sprintf("urgency phrase %q", phrase),
				Weight:      weightUrgency,
			})
			break
		}
	}

	for _, greeting := range genericGreetings {
		if strings.Contains(lower, greeting) {
			indicators = append(indicators, models.PhishingIndicator{
				Type:        "generic_greeting",
				Description: fmt.Sprintf("impersonal greeting %q", greeting),
				Weight:      weightGenericGreeting,
			})
			break
		}
	}

	if host := suspiciousURLHost(lower); host != "" {
		indicators = append(indicators, models.PhishingIndicator{
			Type:        "suspicious_url",
			Description: fmt.Sprintf("shortened or IP-literal link host %q", host),
			Weight:      weightSuspiciousURL,
		})
	}

	if domain := lookAlikeDomain(lower, cfg.SpoofedDomains); domain != "" {
		indicators = append(indicators, models.PhishingIndicator{
			Type:        "spoofed_sender",
			Description: fmt.Sprintf("look-alike of %q", domain),
			Weight:      weightSpoofedSender,
		})
	}

	score := 0.0
	for _, ind := range indicators {
		score += ind.Weight
	}

	return &models.PhishingVerdict{
		IsPhishing:   score > phishingThreshold,
		Score:        score,
		RiskCategory: phishingRiskCategory(score),
		Indicators:   indicators,
	}
}

func phishingRiskCategory(score float64) string {
	switch {
	case score >= 0.8:
		return models.ClassificationCritical
	case score >= 0.6:
		return models.ClassificationHigh
	case score >= 0.4:
		return models.ClassificationMedium
	default:
		return models.ClassificationLow
	}
}

func suspiciousURLHost(content string) string {
	for _, match := range urlPattern.FindAllStringSubmatch(content, -1) {
		host := match[1]
		if idx := strings.IndexByte(host, ':'); idx >= 0 {
			host = host[:idx]
		}
		if net.ParseIP(host) != nil {
			return host
		}
		for _, shortener := range shortenerDomains {
			if host == shortener {
				return host
			}
		}
	}
	return ""
}

// lookAlikeDomain reports a configured domain that appears in the content
// in a typo-squatted form: same name with one character substituted,
// inserted or removed, but not the exact legitimate domain.
func lookAlikeDomain(content string, spoofed []string) string {
	for _, domain := range spoofed {
		if strings.Contains(content, domain) {
			continue
		}
		base := strings.TrimSuffix(domain, ".com")
		for _, word := range strings.FieldsFunc(content, func(r rune) bool {
			return r == ' ' || r == '@' || r == '/' || r == '<' || r == '>' || r == '\n' || r == '\t'
		}) {
			word = strings.TrimSuffix(word, ".com")
			if word == base {
				continue
			}
			if editDistanceAtMostOne(word, base) {
				return domain
			}
		}
	}
	return ""
}

func editDistanceAtMostOne(a, b string) bool {
	if a == b {
		return true
	}
	la, lb := len(a), len(b)
	if la-lb > 1 || lb-la > 1 {
		return false
	}
	if lb > la {
		a, b = b, a
		la, lb = lb, la
	}
	// a is the longer (or equal length) string
	i, j, diffs := 0, 0, 0
	for i < la && j < lb {
		if a[i] == b[j] {
			i++
			j++
			continue
		}
		diffs++
		if diffs > 1 {
			return false
		}
		if la == lb {
			i++
			j++
		} else {
			i++
		}
	}
	return true
}
