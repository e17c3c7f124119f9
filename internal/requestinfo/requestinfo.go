// internal/requestinfo/requestinfo.go
//
// The caller summary and the GeoLite2 handle.
//
// Context
//   RequestInfo is inert data: safe to log, copy into a login log entry, or
//   print in a notice mail.  Geo lookups are optional; without a database
//   (`geo.city_db` empty) the country stays "".
//
//------------------------------------------------------------------------------

package requestinfo

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/yanizio/beacon/internal/ua"
)

// Geo is the best-effort location of the client address.
type Geo struct {
	IP         net.IP
	CountryISO string // "FI", "US", ...
}

// RequestInfo is attached to the request context by Enrich.
type RequestInfo struct {
	Agent ua.Agent
	Geo   Geo
}

// IPString returns the client address or "".
func (ri *RequestInfo) IPString() string {
	if ri == nil || ri.Geo.IP == nil {
		return ""
	}
	return ri.Geo.IP.String()
}

// geoReader is shared by every request; geoip2 readers allow concurrent
// lookups.  Nil disables them.
var geoReader *geoip2.Reader

// InitGeo opens the GeoLite2 City or Country database at path.  An empty
// path leaves lookups disabled.
func InitGeo(path string) error {
	if path == "" {
		return nil
	}
	r, err := geoip2.Open(path)
	if err != nil {
		return fmt.Errorf("requestinfo: open geo db: %w", err)
	}
	geoReader = r
	return nil
}

// CloseGeo releases the database opened by InitGeo.
func CloseGeo() {
	if geoReader != nil {
		_ = geoReader.Close()
		geoReader = nil
	}
}

func lookupGeo(ip net.IP) Geo {
	g := Geo{IP: ip}
	if geoReader == nil || ip == nil {
		return g
	}
	if rec, err := geoReader.Country(ip); err == nil {
		g.CountryISO = rec.Country.IsoCode
	}
	return g
}

/*──────────────────────────── context ──────────────────────────────────────*/

type ctxKey struct{}

// WithInfo returns ctx carrying ri.  Tests use it to fake enrichment.
func WithInfo(ctx context.Context, ri *RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, ri)
}

// FromContext returns the info stored by Enrich, or nil.
func FromContext(ctx context.Context) *RequestInfo {
	v, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return v
}

// AgentFrom returns the caller's browser summary.  Without Enrich the agent
// is unknown.
func AgentFrom(ctx context.Context) ua.Agent {
	if ri := FromContext(ctx); ri != nil {
		return ri.Agent
	}
	return ua.Agent{Device: ua.Other}
}
