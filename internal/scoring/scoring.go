package scoring

import (
	"strings"

	"golang.org/x/text/cases"

	"vantage/internal/environment"
	"vantage/internal/types"
)

const startingScore = 100

// Rule names reported in ScoreResult.Deductions.
const (
	RuleInsecureTransport = "insecure_transport"
	RuleCookiesEnabled    = "cookies_enabled"
	RuleGeolocation       = "geolocation_available"
	RuleMajorProvider     = "major_provider"
	RuleResidential       = "residential_provider"
)

var (
	majorProviders     = []string{"google", "cloudflare"}
	residentialMarkers = []string{"residential"}
)

// Inputs are everything Score looks at. Nothing is read from elsewhere.
type Inputs struct {
	SecureTransport      bool
	CookiesEnabled       bool
	GeolocationAvailable bool
	ProviderName         string
}

// InputsFrom collects scorer inputs from a network record and the probe
// the environment record was built from.
func InputsFrom(rec types.NetworkRecord, p environment.Probe) Inputs {
	return Inputs{
		SecureTransport:      p.SecureTransport(),
		CookiesEnabled:       p.CookiesEnabled(),
		GeolocationAvailable: p.GeolocationAvailable(),
		ProviderName:         rec.ProviderName,
	}
}

// Score applies the deduction table to in. Every condition is checked
// independently and the result is floored at zero.
func Score(in Inputs) types.ScoreResult {
	var deductions []types.Deduction
	deduct := func(rule string, points int) {
		deductions = append(deductions, types.Deduction{Rule: rule, Points: points})
	}

	if !in.SecureTransport {
		deduct(RuleInsecureTransport, 20)
	}
	if in.CookiesEnabled {
		deduct(RuleCookiesEnabled, 10)
	}
	if in.GeolocationAvailable {
		deduct(RuleGeolocation, 15)
	}

	provider := cases.Fold().String(in.ProviderName)
	major := containsAny(provider, majorProviders)
	residential := containsAny(provider, residentialMarkers)
	if major {
		deduct(RuleMajorProvider, 5)
	}
	if residential {
		deduct(RuleResidential, 15)
	}

	score := startingScore
	for _, d := range deductions {
		score -= d.Points
	}

	return types.ScoreResult{
		Score:      max(score, 0),
		Level:      classify(major, residential),
		Deductions: deductions,
	}
}

// classify looks only at the provider name. Transport, cookies and
// geolocation move the number but never the level.
func classify(major, residential bool) types.Level {
	switch {
	case major:
		return types.LevelHigh
	case residential:
		return types.LevelLow
	default:
		return types.LevelMedium
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
