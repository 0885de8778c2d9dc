// Package handler implements the storefront REST endpoints.
package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// ActorHeader optionally names the operator behind an admin request
const ActorHeader = "X-Actor"

// retryAfterSeconds is advertised on 503 responses
const retryAfterSeconds = "5"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a 200 response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// ErrorWithCode sends an error response, deriving the status from the code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 response for input the services never saw
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.ErrorWithCode(c, dto.ErrCodeBadRequest, message)
}

// HandleError converts an error into the response envelope. Domain errors
// keep their code; anything else is a 500 whose detail only reaches the log.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := middleware.GetRequestID(c)
	log := logger.GetGinLogger(c)

	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		log.Error("Unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeInternal, "An unexpected error occurred", requestID))
		return
	}

	code := dto.NormalizeErrorCode(domainErr.Code)
	status := dto.GetHTTPStatus(code)
	resp := dto.NewErrorResponseWithRequestID(code, domainErr.Message, requestID)
	resp.Error.Retryable = domainErr.Retryable()

	switch {
	case status >= http.StatusInternalServerError:
		log.Error("Request failed", zap.String("code", code), zap.Error(err))
		if status == http.StatusServiceUnavailable {
			c.Header("Retry-After", retryAfterSeconds)
		}
	default:
		log.Debug("Request rejected", zap.String("code", code), zap.Error(err))
	}
	c.JSON(status, resp)
}

// bindJSON binds the request body and writes a 400 on failure
func (h *BaseHandler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.bindError(c, err)
		return false
	}
	return true
}

// bindQuery binds query parameters and writes a 400 on failure
func (h *BaseHandler) bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		h.bindError(c, err)
		return false
	}
	return true
}

func (h *BaseHandler) bindError(c *gin.Context, err error) {
	if details := middleware.ValidationDetails(err); details != nil {
		c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
			"Request validation failed", middleware.GetRequestID(c), details))
		return
	}
	h.ErrorWithCode(c, dto.ErrCodeValidation, "Invalid request: "+err.Error())
}

// storeID returns the store scoped by middleware.StoreScope
func (h *BaseHandler) storeID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.GetStoreID(c)
	if !ok {
		h.ErrorWithCode(c, dto.ErrCodeMissingStore, "X-Store-ID header is required")
	}
	return id, ok
}

// uuidParam parses a UUID path parameter and writes a 400 when it is malformed
func (h *BaseHandler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeValidation, "invalid "+name+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// scopedUUID resolves both the store and a UUID path parameter
func (h *BaseHandler) scopedUUID(c *gin.Context, name string) (uuid.UUID, uuid.UUID, bool) {
	storeID, ok := h.storeID(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, ok := h.uuidParam(c, name)
	return storeID, id, ok
}

// actor names who performed an admin mutation for the status timeline
func actor(c *gin.Context) string {
	name := strings.TrimSpace(c.GetHeader(ActorHeader))
	if name == "" {
		return "api"
	}
	if len(name) > 100 {
		name = name[:100]
	}
	return "operator:" + name
}
