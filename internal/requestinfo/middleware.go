// internal/requestinfo/middleware.go
//
// Enrich records who is calling.
//
// Context
//   Beacon keeps a short login log on every account, and the 2FA mail tells
//   the owner which browser asked for the code.  Both read the caller
//   summary Enrich puts in the request context: the client address, the
//   browser, and, when a GeoLite2 database is configured, the country.
//
// Notes
//   •  Beacon runs behind a reverse proxy in production, so the first
//      parseable X-Forwarded-For entry wins, then X-Real-Ip, then
//      RemoteAddr.
//   •  Lookups are read-only; the middleware holds no locks.
//
//------------------------------------------------------------------------------

package requestinfo

import (
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/yanizio/beacon/internal/ua"
)

// Enrich attaches a *RequestInfo to every request.
func Enrich(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		info := &RequestInfo{Agent: ua.Parse(r.UserAgent()), Geo: lookupGeo(ip)}

		zap.S().Debugw("caller", "ip", info.IPString(), "country", info.Geo.CountryISO,
			"browser", info.Agent.Browser, "bot", info.Agent.Bot)

		next.ServeHTTP(w, r.WithContext(WithInfo(r.Context(), info)))
	})
}

func clientIP(r *http.Request) net.IP {
	if ip := firstIP(strings.Split(r.Header.Get("X-Forwarded-For"), ",")); ip != nil {
		return ip
	}
	if ip := firstIP([]string{r.Header.Get("X-Real-Ip")}); ip != nil {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}

// firstIP returns the first candidate that parses as an address.
func firstIP(candidates []string) net.IP {
	for _, c := range candidates {
		if ip := net.ParseIP(strings.TrimSpace(c)); ip != nil {
			return ip
		}
	}
	return nil
}
