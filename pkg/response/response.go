package response

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"brokle/internal/core/domain/apm"
	"brokle/pkg/pagination"
)

// APIResponse is the standard envelope returned by every endpoint.
type APIResponse struct {
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
	Success bool        `json:"success"`
}

// APIError carries the error kind and message for a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Pagination is offset-based pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// Meta carries response-level metadata.
type Meta struct {
	Pagination *Pagination `json:"pagination,omitempty"`
	RequestID  string      `json:"request_id,omitempty"`
	Timestamp  string      `json:"timestamp,omitempty"`
}

// Success returns a 200 response with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: getMeta(c)})
}

// SuccessWithPagination returns a 200 response with pagination metadata attached.
func SuccessWithPagination(c *gin.Context, data interface{}, pag *Pagination) {
	meta := getMeta(c)
	meta.Pagination = pag
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: meta})
}

// Created returns a 201 Created response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data, Meta: getMeta(c)})
}

// Accepted returns a 202 Accepted response, used for batch ingest endpoints.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, APIResponse{Success: true, Data: data, Meta: getMeta(c)})
}

// NoContent returns a 204 No Content response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error writes the response for err, mapping *apm.Error kinds to their HTTP
// status and falling back to 500 for anything else.
func Error(c *gin.Context, err error) {
	var appErr *apm.Error
	if errors.As(err, &appErr) {
		c.JSON(appErr.Kind.HTTPStatus(), APIResponse{
			Success: false,
			Error:   &APIError{Code: string(appErr.Kind), Message: appErr.Message},
			Meta:    getMeta(c),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, APIResponse{
		Success: false,
		Error:   &APIError{Code: string(apm.KindStorageFailure), Message: "internal server error"},
		Meta:    getMeta(c),
	})
}

// ErrorWithStatus writes an ad hoc error response, for adapter-level
// validation failures that never reach the core.
func ErrorWithStatus(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    getMeta(c),
	})
}

func BadRequest(c *gin.Context, message string) {
	ErrorWithStatus(c, http.StatusBadRequest, string(apm.KindInvalidInput), message)
}

func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "unauthorized"
	}
	ErrorWithStatus(c, http.StatusUnauthorized, string(apm.KindUnauthorized), message)
}

// NewPagination builds offset pagination metadata; a limit that is not a valid
// page size is replaced by DefaultPageSize.
func NewPagination(page, limit int, total int64) *Pagination {
	if !pagination.IsValidPageSize(limit) {
		limit = pagination.DefaultPageSize
	}
	totalPages := pagination.CalculateTotalPages(total, limit)
	return &Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// ParsePaginationParams parses page/limit query strings into offset pagination params.
func ParsePaginationParams(page, limit string) (p int, l int) {
	p, l = 1, pagination.DefaultPageSize
	if page != "" {
		if v, err := strconv.Atoi(page); err == nil && v >= 1 {
			p = v
		}
	}
	if limit != "" {
		if v, err := strconv.Atoi(limit); err == nil && pagination.IsValidPageSize(v) {
			l = v
		}
	}
	return p, l
}

func getMeta(c *gin.Context) *Meta {
	meta := &Meta{Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			meta.RequestID = id
		}
	}
	return meta
}
