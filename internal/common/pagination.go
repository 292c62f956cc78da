// File: internal/common/pagination.go
package common

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage = 1
	// DefaultPageSize matches the eight rows the customer table shows per page.
	DefaultPageSize = 8
	MaxPageSize     = 100
)

// PaginationQuery holds pagination parameters from request query.
type PaginationQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

// NormalizePage clamps page and page size to usable values.
func NormalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = DefaultPage
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// GetPaginationParams extracts pagination parameters from Gin context.
func GetPaginationParams(c *gin.Context) (page, pageSize int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(DefaultPage)))
	if err != nil {
		page = DefaultPage
	}
	pageSize, err = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(DefaultPageSize)))
	if err != nil {
		pageSize = DefaultPageSize
	}
	return NormalizePage(page, pageSize)
}

// Offset calculates the offset for database queries.
func (pq PaginationQuery) Offset() int {
	page, pageSize := NormalizePage(pq.Page, pq.PageSize)
	return (page - 1) * pageSize
}

// Limit calculates the limit for database queries.
func (pq PaginationQuery) Limit() int {
	_, pageSize := NormalizePage(pq.Page, pq.PageSize)
	return pageSize
}
