package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/schoolgate/utils"
)

const (
	// KioskKeyHeader carries the shared kiosk API key.
	KioskKeyHeader = "X-Kiosk-Key"
	// DeviceIDHeader identifies the physical kiosk.
	DeviceIDHeader = "X-Device-ID"
	// CronSecretHeader authenticates external schedulers.
	CronSecretHeader = "X-Cron-Secret"

	// ContextDeviceIDKey holds the calling kiosk's device ID.
	ContextDeviceIDKey = "device_id"
	// ContextKioskSiteKey holds the site a tap resolved to; set by the handler.
	ContextKioskSiteKey = "kiosk_site_id"
)

// KioskRequired admits requests that present one of keys and, when cidrs is
// non-empty, originate from an allowed network. Invalid CIDRs are skipped.
func KioskRequired(keys []string, cidrs []string) gin.HandlerFunc {
	nets := parseCIDRs(cidrs)
	return func(c *gin.Context) {
		if len(nets) > 0 && !ipAllowed(effectiveClientIP(c), nets) {
			utils.Error(c, http.StatusForbidden, 40310, "kiosk network not allowed")
			c.Abort()
			return
		}
		if !secretMatches(c.GetHeader(KioskKeyHeader), keys) {
			utils.Error(c, http.StatusUnauthorized, 40110, "invalid kiosk key")
			c.Abort()
			return
		}
		device := utils.CleanText(c.GetHeader(DeviceIDHeader), 64)
		if device == "" {
			device = "kiosk-" + effectiveClientIP(c)
		}
		c.Set(ContextDeviceIDKey, device)
		c.Next()
	}
}

// CronRequired admits schedulers presenting secret. An empty secret disables the route.
func CronRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			utils.Error(c, http.StatusNotFound, 40400, "not found")
			c.Abort()
			return
		}
		if !secretMatches(c.GetHeader(CronSecretHeader), []string{secret}) {
			utils.Error(c, http.StatusUnauthorized, 40120, "invalid cron secret")
			c.Abort()
			return
		}
		c.Next()
	}
}

func secretMatches(got string, want []string) bool {
	got = strings.TrimSpace(got)
	if got == "" {
		return false
	}
	ok := false
	for _, w := range want {
		if w != "" && subtle.ConstantTimeCompare([]byte(got), []byte(w)) == 1 {
			ok = true
		}
	}
	return ok
}

func parseCIDRs(list []string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(list))
	for _, v := range list {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !strings.Contains(v, "/") {
			if ip := net.ParseIP(v); ip != nil && ip.To4() != nil {
				v += "/32"
			} else {
				v += "/128"
			}
		}
		if _, n, err := net.ParseCIDR(v); err == nil {
			out = append(out, n)
		} else {
			utils.Sugar.Warnf("ignoring invalid kiosk CIDR %q: %v", v, err)
		}
	}
	return out
}

func ipAllowed(ip string, nets []*net.IPNet) bool {
	p := net.ParseIP(ip)
	if p == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(p) {
			return true
		}
	}
	return false
}

// effectiveClientIP prefers X-Real-IP, then the first X-Forwarded-For hop, then gin's ClientIP.
func effectiveClientIP(c *gin.Context) string {
	if v := stripPort(strings.TrimSpace(c.GetHeader("X-Real-IP"))); net.ParseIP(v) != nil {
		return v
	}
	if v := strings.TrimSpace(c.GetHeader("X-Forwarded-For")); v != "" {
		first := stripPort(strings.TrimSpace(strings.Split(v, ",")[0]))
		if net.ParseIP(first) != nil {
			return first
		}
	}
	return stripPort(c.ClientIP())
}

func stripPort(ip string) string {
	if h, _, err := net.SplitHostPort(ip); err == nil {
		return h
	}
	return ip
}
