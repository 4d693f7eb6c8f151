package netinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"vantage/internal/types"
)

const maxBodyBytes = 1 << 20

// IPPlaceholder marks where the visitor address goes in a per-IP endpoint.
const IPPlaceholder = "{ip}"

// HTTPFetcher asks a remote IP geolocation endpoint about the visitor.
// With a visitor address in the context and a per-IP template configured,
// the address is substituted into the template. Otherwise the bare endpoint
// is called and the provider reports on whoever connects to it.
type HTTPFetcher struct {
	endpoint string
	perIP    string
	client   *http.Client
}

type HTTPOption func(*HTTPFetcher)

// WithTimeout bounds the whole request. Zero disables the bound.
func WithTimeout(d time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		f.client.Timeout = d
	}
}

// WithPerIPEndpoint sets the template used when the visitor address is known,
// e.g. "https://ipapi.co/{ip}/json/".
func WithPerIPEndpoint(template string) HTTPOption {
	return func(f *HTTPFetcher) {
		f.perIP = template
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

func NewHTTPFetcher(endpoint string, opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		endpoint: endpoint,
		client:   &http.Client{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs a single GET with no retry. Failures are logged and
// collapsed into Fallback().
func (f *HTTPFetcher) Fetch(ctx context.Context) types.NetworkRecord {
	raw, err := f.lookup(ctx)
	if err != nil {
		log.WithFields(log.Fields{
			"component": "netinfo",
			"endpoint":  f.endpoint,
		}).Warnf("network info unavailable, using fallback: %v", err)
		return Fallback()
	}
	rec := Normalize(raw)
	log.WithFields(log.Fields{
		"component": "netinfo",
		"address":   rec.Address,
		"provider":  rec.ProviderName,
	}).Debug("network info fetched")
	return rec
}

// target picks the URL for this lookup. Only addresses that parse are
// substituted, so header junk never reaches the provider's path.
func (f *HTTPFetcher) target(ctx context.Context) string {
	if f.perIP == "" || !strings.Contains(f.perIP, IPPlaceholder) {
		return f.endpoint
	}
	ip, ok := ClientIPFrom(ctx)
	if !ok {
		return f.endpoint
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return f.endpoint
	}
	return strings.ReplaceAll(f.perIP, IPPlaceholder, addr.Unmap().String())
}

func (f *HTTPFetcher) lookup(ctx context.Context) (ProviderResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.target(ctx), nil)
	if err != nil {
		return ProviderResponse{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "vantage/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return ProviderResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return ProviderResponse{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ProviderResponse{}, fmt.Errorf("http status %d", resp.StatusCode)
	}

	parsed, err := DecodeProviderResponse(body)
	if err != nil {
		return ProviderResponse{}, err
	}
	if parsed.Error {
		return ProviderResponse{}, fmt.Errorf("provider error: %s", parsed.Reason)
	}
	return parsed, nil
}

// DecodeProviderResponse reads a provider body field by field. Only a body
// that is not a JSON object is an error; a field that is missing or of the
// wrong type is left empty and later resolves to its sentinel on its own.
func DecodeProviderResponse(body []byte) (ProviderResponse, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ProviderResponse{}, fmt.Errorf("decode provider response: %w", err)
	}
	if fields == nil {
		return ProviderResponse{}, fmt.Errorf("decode provider response: not an object")
	}
	return ProviderResponse{
		IP:          stringField(fields, "ip"),
		CountryName: stringField(fields, "country_name"),
		Region:      stringField(fields, "region"),
		City:        stringField(fields, "city"),
		Org:         stringField(fields, "org"),
		Timezone:    stringField(fields, "timezone"),
		Latitude:    numberField(fields, "latitude"),
		Longitude:   numberField(fields, "longitude"),
		Error:       boolField(fields, "error"),
		Reason:      stringField(fields, "reason"),
	}, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var s string
	if raw, ok := fields[key]; ok && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}

func numberField(fields map[string]json.RawMessage, key string) *float64 {
	var f float64
	if raw, ok := fields[key]; ok && json.Unmarshal(raw, &f) == nil {
		return &f
	}
	return nil
}

func boolField(fields map[string]json.RawMessage, key string) bool {
	var b bool
	if raw, ok := fields[key]; ok && json.Unmarshal(raw, &b) == nil {
		return b
	}
	return false
}
