package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/cppla/schoolgate/utils"
)

func TestRateLimitPerKey(t *testing.T) {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextDeviceIDKey, c.GetHeader(DeviceIDHeader))
		c.Next()
	})
	r.GET("/", RateLimit(2, ByDevice), func(c *gin.Context) { utils.Success(c, nil) })

	gate := func(id string) request {
		return request{path: "/", headers: map[string]string{DeviceIDHeader: id}}
	}

	w, _ := do(t, r, gate("a"))
	assert.Equal(t, http.StatusOK, w.Code)
	w, body := do(t, r, gate("a"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 42901, body.Code)

	w, _ = do(t, r, gate("b"))
	assert.Equal(t, http.StatusOK, w.Code, "other devices have their own bucket")
}

func TestRateLimitInstancesAreIndependent(t *testing.T) {
	r := gin.New()
	r.GET("/one", RateLimit(1, nil), func(c *gin.Context) { utils.Success(c, nil) })
	r.GET("/two", RateLimit(1, nil), func(c *gin.Context) { utils.Success(c, nil) })

	w, _ := do(t, r, request{path: "/one"})
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, request{path: "/two"})
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, request{path: "/one"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestByDeviceFallsBackToIP(t *testing.T) {
	c, _ := gin.CreateTestContext(nil)
	c.Request, _ = http.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "10.0.0.9:1234"
	assert.Equal(t, "10.0.0.9", ByDevice(c))

	c.Set(ContextDeviceIDKey, "gate-1")
	assert.Equal(t, "device:gate-1", ByDevice(c))
}
