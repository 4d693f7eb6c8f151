package netinfo

import (
	"context"

	"github.com/umahmood/haversine"

	"vantage/internal/types"
)

// WithDistance decorates next so each live record carries its great-circle
// distance from the server. The fallback record is left untouched.
func WithDistance(next Fetcher, serverLat, serverLon float64) Fetcher {
	server := haversine.Coord{Lat: serverLat, Lon: serverLon}
	return FetcherFunc(func(ctx context.Context) types.NetworkRecord {
		rec := next.Fetch(ctx)
		if rec == Fallback() {
			return rec
		}
		_, km := haversine.Distance(server, haversine.Coord{Lat: rec.Latitude, Lon: rec.Longitude})
		rec.DistanceKm = km
		return rec
	})
}
