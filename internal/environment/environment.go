package environment

import (
	"fmt"
	"net/http"
	"strings"

	"vantage/internal/types"
)

// Probe is the read-only view of the visitor's execution environment.
type Probe interface {
	UserAgent() string
	Platform() string
	Language() string
	CookiesEnabled() bool
	LegacyRuntime() bool
	GeolocationAvailable() bool
	SecureTransport() bool
	Screen() types.Dimensions
	Viewport() types.Dimensions
}

// Inspect builds an environment record from p. It has no failure mode.
func Inspect(p Probe) types.EnvironmentRecord {
	ua := p.UserAgent()
	family, version := DetectBrowser(ua)
	return types.EnvironmentRecord{
		BrowserFamily:      family,
		BrowserVersion:     version,
		OperatingSystem:    DetectOS(ua),
		PlatformIdentifier: p.Platform(),
		PreferredLanguage:  p.Language(),
		RawUserAgent:       ua,
		CookiesEnabled:     p.CookiesEnabled(),
		LegacyRuntimeFlag:  p.LegacyRuntime(),
		ScreenDimensions:   FormatDimensions(p.Screen()),
		ViewportDimensions: FormatDimensions(p.Viewport()),
	}
}

func FormatDimensions(d types.Dimensions) string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// StaticProbe is a Probe backed by plain fields.
type StaticProbe struct {
	UA        string
	Plat      string
	Lang      string
	Cookies   bool
	Legacy    bool
	Geo       bool
	Secure    bool
	ScreenDim types.Dimensions
	ViewDim   types.Dimensions
}

func (s StaticProbe) UserAgent() string { return s.UA }
func (s StaticProbe) Platform() string { return s.Plat }
func (s StaticProbe) Language() string { return s.Lang }
func (s StaticProbe) CookiesEnabled() bool { return s.Cookies }
func (s StaticProbe) LegacyRuntime() bool { return s.Legacy }
func (s StaticProbe) GeolocationAvailable() bool { return s.Geo }
func (s StaticProbe) SecureTransport() bool { return s.Secure }
func (s StaticProbe) Screen() types.Dimensions { return s.ScreenDim }
func (s StaticProbe) Viewport() types.Dimensions { return s.ViewDim }

// RequestProbe reads the environment from request headers plus the hints
// the page script posted. Values are captured at construction, so the probe
// stays valid after the request is done.
type RequestProbe struct {
	StaticProbe
}

// NewRequestProbe captures r and hints. Reported platform and language take
// precedence over what headers suggest.
func NewRequestProbe(r *http.Request, hints types.ClientHints) *RequestProbe {
	p := &RequestProbe{StaticProbe{
		UA:        r.Header.Get("User-Agent"),
		Plat:      hints.Platform,
		Lang:      hints.Language,
		Cookies:   hints.CookiesEnabled,
		Legacy:    hints.LegacyRuntime,
		Geo:       hints.GeolocationAvailable,
		Secure:    hints.SecureContext || IsSecureRequest(r),
		ScreenDim: hints.Screen,
		ViewDim:   hints.Viewport,
	}}
	if p.Lang == "" {
		p.Lang = primaryLanguage(r.Header.Get("Accept-Language"))
	}
	if p.Plat == "" {
		p.Plat = strings.Trim(r.Header.Get("Sec-CH-UA-Platform"), `"`)
	}
	return p
}

// IsSecureRequest reports whether the visitor reached us over TLS, directly
// or through a terminating proxy.
func IsSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// primaryLanguage returns the first tag of an Accept-Language header without its q-value.
func primaryLanguage(header string) string {
	first, _, _ := strings.Cut(header, ",")
	tag, _, _ := strings.Cut(first, ";")
	return strings.TrimSpace(tag)
}
