package netinfo

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/oschwald/geoip2-golang/v2"
	log "github.com/sirupsen/logrus"

	"vantage/internal/types"
)

var (
	ErrNoClientIP = errors.New("no client ip in context")
	ErrNoRecord   = errors.New("address not in database")
)

// GeoIPFetcher resolves the visitor address against local MaxMind databases.
// The ASN database is optional; without it the provider name stays Unknown.
type GeoIPFetcher struct {
	city *geoip2.Reader
	asn  *geoip2.Reader
}

func OpenGeoIP(cityPath, asnPath string) (*GeoIPFetcher, error) {
	city, err := geoip2.Open(cityPath)
	if err != nil {
		return nil, fmt.Errorf("open city database %s: %w", cityPath, err)
	}
	f := &GeoIPFetcher{city: city}
	if asnPath != "" {
		asn, err := geoip2.Open(asnPath)
		if err != nil {
			city.Close()
			return nil, fmt.Errorf("open asn database %s: %w", asnPath, err)
		}
		f.asn = asn
	}
	return f, nil
}

func (f *GeoIPFetcher) Close() error {
	var errs []error
	if f.city != nil {
		errs = append(errs, f.city.Close())
	}
	if f.asn != nil {
		errs = append(errs, f.asn.Close())
	}
	return errors.Join(errs...)
}

func (f *GeoIPFetcher) Fetch(ctx context.Context) types.NetworkRecord {
	rec, err := f.lookup(ctx)
	if err != nil {
		log.WithField("component", "netinfo").Warnf("geoip lookup failed, using fallback: %v", err)
		return Fallback()
	}
	return rec
}

func (f *GeoIPFetcher) lookup(ctx context.Context) (types.NetworkRecord, error) {
	ip, ok := ClientIPFrom(ctx)
	if !ok {
		return types.NetworkRecord{}, ErrNoClientIP
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return types.NetworkRecord{}, fmt.Errorf("invalid client ip %q: %w", ip, err)
	}

	city, err := f.city.City(addr)
	if err != nil {
		return types.NetworkRecord{}, err
	}
	if !city.HasData() {
		return types.NetworkRecord{}, fmt.Errorf("%s: %w", ip, ErrNoRecord)
	}

	raw := ProviderResponse{
		IP:          addr.String(),
		CountryName: city.Country.Names.English,
		City:        city.City.Names.English,
		Timezone:    city.Location.TimeZone,
		Latitude:    city.Location.Latitude,
		Longitude:   city.Location.Longitude,
	}
	if len(city.Subdivisions) > 0 {
		raw.Region = city.Subdivisions[0].Names.English
	}
	if f.asn != nil {
		if asn, err := f.asn.ASN(addr); err == nil {
			raw.Org = asn.AutonomousSystemOrganization
		} else {
			log.WithField("component", "netinfo").Debugf("asn lookup for %s: %v", ip, err)
		}
	}
	return Normalize(raw), nil
}
