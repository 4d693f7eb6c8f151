package types

import "time"

// Unknown is the sentinel used for any string field the source could not supply.
const Unknown = "Unknown"

// LeakPending is rendered for the WebRTC and DNS leak indicators. No detection runs behind it.
const LeakPending = "Checking..."

// NetworkRecord is the normalized geolocation/ISP view of the visitor's address.
type NetworkRecord struct {
	Address      string  `json:"address"`
	Country      string  `json:"country"`
	Region       string  `json:"region"`
	City         string  `json:"city"`
	ProviderName string  `json:"providerName"`
	Timezone     string  `json:"timezone"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	DistanceKm   float64 `json:"distanceKm,omitempty"`
}

// EnvironmentRecord is a snapshot of browser and device characteristics.
type EnvironmentRecord struct {
	BrowserFamily      string `json:"browserFamily"`
	BrowserVersion     string `json:"browserVersion"`
	OperatingSystem    string `json:"operatingSystem"`
	PlatformIdentifier string `json:"platformIdentifier"`
	PreferredLanguage  string `json:"preferredLanguage"`
	RawUserAgent       string `json:"rawUserAgent"`
	CookiesEnabled     bool   `json:"cookiesEnabled"`
	LegacyRuntimeFlag  bool   `json:"legacyRuntimeFlag"`
	ScreenDimensions   string `json:"screenDimensions"`
	ViewportDimensions string `json:"viewportDimensions"`
}

// Level is the qualitative privacy classification.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Deduction is one scoring rule that fired.
type Deduction struct {
	Rule   string `json:"rule"`
	Points int    `json:"points"`
}

type ScoreResult struct {
	Score      int         `json:"score"`
	Level      Level       `json:"level"`
	Deductions []Deduction `json:"deductions,omitempty"`
}

// Dimensions is a width/height pair in CSS pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ClientHints is what the page script reports about the browser, since
// none of it is visible in request headers.
type ClientHints struct {
	Platform             string     `json:"platform"`
	Language             string     `json:"language"`
	CookiesEnabled       bool       `json:"cookiesEnabled"`
	LegacyRuntime        bool       `json:"legacyRuntime"`
	GeolocationAvailable bool       `json:"geolocationAvailable"`
	SecureContext        bool       `json:"secureContext"`
	Screen               Dimensions `json:"screen"`
	Viewport             Dimensions `json:"viewport"`
}

type LeakIndicators struct {
	WebRTC string `json:"webrtc"`
	DNS    string `json:"dns"`
}

// Snapshot is the read-only view of one dashboard session.
type Snapshot struct {
	Network     *NetworkRecord     `json:"network"`
	Environment *EnvironmentRecord `json:"environment"`
	Score       *ScoreResult       `json:"score"`
	Leaks       LeakIndicators     `json:"leaks"`
	Loading     bool               `json:"loading"`
	Generation  uint64             `json:"generation"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}
