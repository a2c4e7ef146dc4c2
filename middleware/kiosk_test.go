package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/cppla/schoolgate/utils"
)

func kioskRouter(keys, cidrs []string) *gin.Engine {
	r := gin.New()
	r.GET("/tap", KioskRequired(keys, cidrs), func(c *gin.Context) {
		utils.Success(c, gin.H{"device": c.GetString(ContextDeviceIDKey)})
	})
	return r
}

func TestKioskRequired(t *testing.T) {
	r := kioskRouter([]string{"key-1", "key-2"}, []string{"10.0.0.0/8", "192.168.1.5", "not-a-cidr"})

	cases := []struct {
		name   string
		ip     string
		key    string
		device string
		status int
		code   int
		want   string
	}{
		{name: "missing key", ip: "10.1.2.3", status: http.StatusUnauthorized, code: 40110},
		{name: "wrong key", ip: "10.1.2.3", key: "nope", status: http.StatusUnauthorized, code: 40110},
		{name: "second key accepted", ip: "10.1.2.3", key: "key-2", status: http.StatusOK, want: "kiosk-10.1.2.3"},
		{name: "device header wins", ip: "10.9.9.9", key: "key-1", device: "gate-east", status: http.StatusOK, want: "gate-east"},
		{name: "bare ip allowed", ip: "192.168.1.5", key: "key-1", status: http.StatusOK, want: "kiosk-192.168.1.5"},
		{name: "neighbour rejected", ip: "192.168.1.6", key: "key-1", status: http.StatusForbidden, code: 40310},
		{name: "network checked before key", ip: "172.16.0.1", status: http.StatusForbidden, code: 40310},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{"X-Real-IP": tc.ip}
			if tc.key != "" {
				headers[KioskKeyHeader] = tc.key
			}
			if tc.device != "" {
				headers[DeviceIDHeader] = tc.device
			}
			w, body := do(t, r, request{path: "/tap", headers: headers})
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, body.Code)
			if tc.want != "" {
				assert.Equal(t, tc.want, body.Data.(map[string]interface{})["device"])
			}
		})
	}
}

func TestKioskRequiredWithoutNetworksAllowsAnyIP(t *testing.T) {
	r := kioskRouter([]string{"key-1"}, nil)
	w, _ := do(t, r, request{path: "/tap", headers: map[string]string{
		KioskKeyHeader:    "key-1",
		"X-Forwarded-For": "203.0.113.7, 10.0.0.1",
	}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestKioskRequiredWithNoKeysRejectsAll(t *testing.T) {
	r := kioskRouter(nil, nil)
	w, _ := do(t, r, request{path: "/tap", headers: map[string]string{KioskKeyHeader: "anything"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCronRequired(t *testing.T) {
	route := func(secret string) *gin.Engine {
		r := gin.New()
		r.POST("/cron", CronRequired(secret), func(c *gin.Context) { utils.Success(c, nil) })
		return r
	}

	w, _ := do(t, route(""), request{method: http.MethodPost, path: "/cron", headers: map[string]string{CronSecretHeader: ""}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := do(t, route("s3cret"), request{method: http.MethodPost, path: "/cron", headers: map[string]string{CronSecretHeader: "guess"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 40120, body.Code)

	w, body = do(t, route("s3cret"), request{method: http.MethodPost, path: "/cron", headers: map[string]string{CronSecretHeader: "s3cret"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.OK)
}

func TestParseCIDRs(t *testing.T) {
	nets := parseCIDRs([]string{" 10.0.0.0/8 ", "", "::1", "garbage"})
	assert.Len(t, nets, 2)
	assert.True(t, ipAllowed("10.200.0.1", nets))
	assert.True(t, ipAllowed("::1", nets))
	assert.False(t, ipAllowed("11.0.0.1", nets))
	assert.False(t, ipAllowed("not-an-ip", nets))
}

func TestStripPort(t *testing.T) {
	assert.Equal(t, "10.0.0.1", stripPort("10.0.0.1:5000"))
	assert.Equal(t, "::1", stripPort("[::1]:80"))
	assert.Equal(t, "10.0.0.1", stripPort("10.0.0.1"))
}
