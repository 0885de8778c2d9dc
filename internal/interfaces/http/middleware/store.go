package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// Store scoping keys
const (
	StoreIDKey  = "store_id"
	StoreHeader = "X-Store-ID"
)

// StoreScope requires a valid X-Store-ID header and attaches the store to the
// gin context. The request logger is tagged unless logger.GinMiddleware already
// did so.
func StoreScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(StoreHeader)
		if raw == "" {
			abort(c, dto.ErrCodeMissingStore, "X-Store-ID header is required")
			return
		}
		storeID, err := uuid.Parse(raw)
		if err != nil || storeID == uuid.Nil {
			abort(c, dto.ErrCodeMissingStore, "X-Store-ID must be a store UUID")
			return
		}

		c.Set(StoreIDKey, storeID)
		if logger.GetStoreID(c.Request.Context()) == "" {
			ctx, reqLogger := logger.WithStoreID(c.Request.Context(), logger.GetGinLogger(c), storeID.String())
			c.Set(logger.GinContextKey, reqLogger)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// GetStoreID returns the store set by StoreScope
func GetStoreID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(StoreIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
