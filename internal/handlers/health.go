package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sekolahku/backend/pkg/errors"
	"github.com/sekolahku/backend/pkg/response"
)

// Health returns a status payload useful for readiness checks. When a database
// handle is provided the check includes connectivity.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(requestContext(c))
			}
			if err != nil {
				response.Error(c, errors.New("SERVICE_UNAVAILABLE", "Database unreachable", http.StatusServiceUnavailable).WithInternal(err))
				return
			}
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}
