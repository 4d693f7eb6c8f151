package environment

import (
	"regexp"
	"strings"

	"vantage/internal/types"
)

// browserRule matches when the user agent contains Needle; the version is
// the first capture of Version.
type browserRule struct {
	Family  string
	Needle  string
	Version *regexp.Regexp
}

type osRule struct {
	Name   string
	Needle string
}

// Evaluated in order, first match wins. Chrome precedes Safari and Edge, so
// Chromium-based browsers that also advertise "Safari" or "Edge" report as Chrome.
var browserRules = []browserRule{
	{Family: "Chrome", Needle: "Chrome", Version: regexp.MustCompile(`Chrome/(\d+)`)},
	{Family: "Firefox", Needle: "Firefox", Version: regexp.MustCompile(`Firefox/(\d+)`)},
	{Family: "Safari", Needle: "Safari", Version: regexp.MustCompile(`Version/(\d+)`)},
	{Family: "Edge", Needle: "Edge", Version: regexp.MustCompile(`Edge/(\d+)`)},
}

// Android user agents also contain "Linux"; iOS ones contain "Mac OS X".
var osRules = []osRule{
	{Name: "Windows", Needle: "Windows"},
	{Name: "Mac", Needle: "Mac"},
	{Name: "Linux", Needle: "Linux"},
	{Name: "Android", Needle: "Android"},
	{Name: "iOS", Needle: "iOS"},
}

// DetectBrowser returns family and major version, or Unknown for both.
func DetectBrowser(ua string) (family, version string) {
	for _, rule := range browserRules {
		if !strings.Contains(ua, rule.Needle) {
			continue
		}
		version = types.Unknown
		if m := rule.Version.FindStringSubmatch(ua); len(m) == 2 {
			version = m[1]
		}
		return rule.Family, version
	}
	return types.Unknown, types.Unknown
}

func DetectOS(ua string) string {
	for _, rule := range osRules {
		if strings.Contains(ua, rule.Needle) {
			return rule.Name
		}
	}
	return types.Unknown
}
