// internal/requestinfo/requestinfo.go
//
// Per-request client metadata for the access log.
//
// Context
// -------
// The proxy relays X-Forwarded-For and User-Agent to the backend verbatim;
// this package reads the same headers once more, purely for our own logs
// and metrics: which client IP, which country (when a GeoLite2 database is
// configured), which device class, and whether the caller is a bot.
//
// Dependencies
// • github.com/avct/uasurfer           (UA parsing)
// • github.com/oschwald/geoip2-golang  (MaxMind lookup, optional)
//
// Notes
// -----
// • Info is inert and safe to log.  It never holds header values other than
//   the parsed UA fields.
// • The GeoLite2 reader is safe for concurrent reads.

package requestinfo

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	surfer "github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
)

// UA is the parsed user agent.
type UA struct {
	Browser string // "Chrome", "Firefox", ...
	Version string // "125.0.6422"
	OS      string
	Device  string // "Desktop", "Tablet", "Mobile", or "Other"
	IsBot   bool
}

// Info describes the caller of one request.
type Info struct {
	IP      net.IP
	Country string // ISO code; empty without a GeoLite2 database
	UA      UA
	Start   time.Time
}

// Enricher builds Info values.  The zero value works without geo data.
type Enricher struct {
	geo *geoip2.Reader
}

// Open returns an Enricher.  An empty geoPath disables country lookups.
func Open(geoPath string) (*Enricher, error) {
	if geoPath == "" {
		return &Enricher{}, nil
	}
	r, err := geoip2.Open(geoPath)
	if err != nil {
		return nil, fmt.Errorf("open GeoLite2 db: %w", err)
	}
	return &Enricher{geo: r}, nil
}

// Close releases the GeoLite2 reader.
func (e *Enricher) Close() error {
	if e == nil || e.geo == nil {
		return nil
	}
	return e.geo.Close()
}

// Lookup parses r.  It never fails; missing data leaves fields empty.
func (e *Enricher) Lookup(r *http.Request) *Info {
	ip := ClientIP(r)
	return &Info{
		IP:      ip,
		Country: e.country(ip),
		UA:      ParseUA(r.UserAgent()),
		Start:   time.Now().UTC(),
	}
}

// Middleware stores the Info for downstream handlers.
func (e *Enricher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ctxKey{}, e.Lookup(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type ctxKey struct{}

// FromContext returns the Info stored by Middleware, or nil.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(ctxKey{}).(*Info)
	return v
}

func (e *Enricher) country(ip net.IP) string {
	if e == nil || e.geo == nil || ip == nil {
		return ""
	}
	rec, err := e.geo.Country(ip)
	if err != nil {
		return ""
	}
	return rec.Country.IsoCode
}

/*──────────────────────────── client IP ────────────────────────────────────*/

// ClientIP extracts the left-most parseable address from X-Forwarded-For or
// X-Real-Ip, falling back to r.RemoteAddr ("ip:port").
func ClientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(r.RemoteAddr)
}

/*──────────────────────────── user agent ───────────────────────────────────*/

// ParseUA converts a raw User-Agent header.
func ParseUA(raw string) UA {
	if raw == "" {
		return UA{Device: "Other"}
	}
	u := surfer.Parse(raw)

	out := UA{
		Browser: strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		Version: versionString(u.Browser.Version),
		OS:      strings.TrimPrefix(u.OS.Name.String(), "OS"),
		IsBot:   u.IsBot(),
	}
	switch u.DeviceType {
	case surfer.DeviceComputer:
		out.Device = "Desktop"
	case surfer.DeviceTablet:
		out.Device = "Tablet"
	case surfer.DevicePhone, surfer.DeviceWearable:
		out.Device = "Mobile"
	default:
		out.Device = "Other"
	}
	return out
}

// versionString renders 17.0.0 as "17", 17.3.0 as "17.3", 17.3.1 as "17.3.1".
func versionString(v surfer.Version) string {
	switch {
	case v.Major == 0 && v.Minor == 0 && v.Patch == 0:
		return ""
	case v.Patch != 0:
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	case v.Minor != 0:
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return strconv.Itoa(int(v.Major))
}
