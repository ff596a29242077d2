// file: internal/server/error_handler.go
// version: 3.0.0
// guid: 5d6e7f8a-9b0c-1d2e-3f4a-5b6c7d8e9f0a

package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jdfalk/media-library/internal/enrichment"
	"github.com/jdfalk/media-library/internal/metadata"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}

// SuccessResponse wraps single-object results.
type SuccessResponse struct {
	Data any `json:"data,omitempty"`
}

// RespondWithError writes an ErrorResponse tagged with the request ID.
func RespondWithError(c *gin.Context, statusCode int, message string, code string) {
	logResponseError(c, statusCode, code, message)

	c.JSON(statusCode, ErrorResponse{
		Error:     message,
		Code:      code,
		Status:    statusCode,
		RequestID: c.GetString(requestIDKey),
	})
}

func RespondWithBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, message, "BAD_REQUEST")
}

// RespondWithNotFound reports a missing library resource, e.g. "album not found: 7".
func RespondWithNotFound(c *gin.Context, resourceType string, id string) {
	message := resourceType + " not found"
	if id != "" {
		message += ": " + id
	}
	RespondWithError(c, http.StatusNotFound, message, "NOT_FOUND")
}

func RespondWithInternalError(c *gin.Context, message string) {
	RespondWithError(c, http.StatusInternalServerError, message, "INTERNAL_ERROR")
}

func RespondWithOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse{Data: data})
}

// RespondWithList writes one page of items; count is the total before paging.
func RespondWithList(c *gin.Context, items any, count int, limit int, offset int) {
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"count":  count,
		"limit":  limit,
		"offset": offset,
	})
}

func RespondWithNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// RespondWithLookupError maps a metadata lookup error onto an HTTP status.
// A negative lookup is a 404; providers being down is a 503.
func RespondWithLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		RespondWithError(c, http.StatusNotFound, err.Error(), "METADATA_NOT_FOUND")
	case errors.Is(err, metadata.ErrInvalidQuery), errors.Is(err, enrichment.ErrUnsupportedKind):
		RespondWithError(c, http.StatusBadRequest, err.Error(), "INVALID_QUERY")
	case errors.Is(err, metadata.ErrProvidersUnavailable):
		RespondWithError(c, http.StatusServiceUnavailable, err.Error(), "PROVIDERS_UNAVAILABLE")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		RespondWithError(c, http.StatusGatewayTimeout, err.Error(), "TIMEOUT")
	default:
		RespondWithInternalError(c, err.Error())
	}
}

// logResponseError logs through the request's logger. Misses are routine
// for a metadata API and stay at debug.
func logResponseError(c *gin.Context, statusCode int, code, message string) {
	log := requestLog(c)
	line := "%s %s -> %d %s: %s [request-id: %s]"
	args := []any{c.Request.Method, c.Request.URL.Path, statusCode, code, message, c.GetString(requestIDKey)}
	switch {
	case statusCode >= http.StatusInternalServerError:
		log.Errorf(line, args...)
	case statusCode == http.StatusNotFound:
		log.Debugf(line, args...)
	default:
		log.Warnf(line, args...)
	}
}

// ParseQueryInt returns the integer query parameter key, or defaultValue
// when it is absent or malformed.
func ParseQueryInt(c *gin.Context, key string, defaultValue int) int {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

// ParseQueryBool returns defaultValue when key is absent. Anything
// strconv.ParseBool rejects counts as false.
func ParseQueryBool(c *gin.Context, key string, defaultValue bool) bool {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(raw)
	return err == nil && value
}

// PaginationParams holds validated limit/offset values.
type PaginationParams struct {
	Limit  int
	Offset int
}

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

// ParsePaginationParams reads ?limit and ?offset, clamping the limit to
// [1, maxPageSize] and the offset to >= 0.
func ParsePaginationParams(c *gin.Context) PaginationParams {
	p := PaginationParams{
		Limit:  ParseQueryInt(c, "limit", defaultPageSize),
		Offset: max(ParseQueryInt(c, "offset", 0), 0),
	}
	if p.Limit < 1 {
		p.Limit = defaultPageSize
	}
	p.Limit = min(p.Limit, maxPageSize)
	return p
}
