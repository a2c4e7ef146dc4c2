package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/schoolgate/config"
	"github.com/cppla/schoolgate/models"
	"github.com/cppla/schoolgate/utils"
)

// DeviceSeen upserts the calling kiosk's heartbeat after the handler runs. The
// device's site follows the last tap that resolved to an individual; until then
// it is the default site.
func DeviceSeen(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		device := c.GetString(ContextDeviceIDKey)
		if device == "" {
			return
		}
		now := time.Now().UTC()
		ip := effectiveClientIP(c)
		assignments := map[string]interface{}{
			"requests":     gorm.Expr("requests + 1"),
			"last_ip":      ip,
			"last_seen_at": now,
			"updated_at":   now,
		}
		site := c.GetString(ContextKioskSiteKey)
		if site != "" {
			assignments["site_id"] = site
		} else {
			site = config.Get().DefaultSiteID
		}
		err := db.WithContext(c.Request.Context()).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.Assignments(assignments),
		}).Create(&models.KioskDevice{
			DeviceID:   device,
			SiteID:     site,
			LastIP:     ip,
			LastSeenAt: now,
			Requests:   1,
		}).Error
		if err != nil {
			utils.Logger.Warn("kiosk heartbeat failed", zap.String("device_id", device), zap.Error(err))
		}
	}
}
