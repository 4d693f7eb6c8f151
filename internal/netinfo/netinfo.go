package netinfo

import (
	"context"
	"strings"

	"vantage/internal/types"
)

// Fetcher produces the network record for the current visitor. Implementations
// never fail outward: any error is logged and replaced by Fallback().
type Fetcher interface {
	Fetch(ctx context.Context) types.NetworkRecord
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context) types.NetworkRecord

func (f FetcherFunc) Fetch(ctx context.Context) types.NetworkRecord { return f(ctx) }

// Fallback is the fixed record substituted when network info is unavailable.
func Fallback() types.NetworkRecord {
	return types.NetworkRecord{
		Address:      "0.0.0.0",
		Country:      "Demo Country",
		Region:       "Demo Region",
		City:         "Demo City",
		ProviderName: "Demo ISP",
		Timezone:     "UTC",
	}
}

// ProviderResponse holds the fields of an ipapi.co style answer. Pointers
// keep "missing" and "zero" apart. See DecodeProviderResponse.
type ProviderResponse struct {
	IP          string
	CountryName string
	Region      string
	City        string
	Org         string
	Timezone    string
	Latitude    *float64
	Longitude   *float64

	// Set by the provider on quota or lookup errors, with a 200 status.
	Error  bool
	Reason string
}

// Normalize maps a provider response field by field; each empty value
// resolves to its sentinel independently of the others.
func Normalize(raw ProviderResponse) types.NetworkRecord {
	return types.NetworkRecord{
		Address:      orUnknown(raw.IP),
		Country:      orUnknown(raw.CountryName),
		Region:       orUnknown(raw.Region),
		City:         orUnknown(raw.City),
		ProviderName: orUnknown(raw.Org),
		Timezone:     orUnknown(raw.Timezone),
		Latitude:     orZero(raw.Latitude),
		Longitude:    orZero(raw.Longitude),
	}
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return types.Unknown
	}
	return s
}

func orZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

type clientIPKey struct{}

// WithClientIP records the visitor address for fetchers that look it up
// locally instead of relying on the connection's source address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIPFrom(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPKey{}).(string)
	return ip, ok && ip != ""
}
