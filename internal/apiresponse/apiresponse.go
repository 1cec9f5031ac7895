// Package apiresponse defines the JSON envelope returned by the HTTP API:
// {"data": ..., "code": 200, "pagination": {...}, "message": "ok"}.
package apiresponse

import (
	"encoding/json"
	"net/http"
)

// Pagination describes the page of a list response.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Response wraps a payload with a status code and message.
// Code mirrors the HTTP status of the response.
type Response[T any] struct {
	Data       T           `json:"data"`
	Code       int         `json:"code"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Message    string      `json:"message"`
}

// OK wraps data in a 200 response.
func OK[T any](data T) Response[T] {
	return Response[T]{Data: data, Code: http.StatusOK, Message: "ok"}
}

// Paginated wraps a page of data in a 200 response.
func Paginated[T any](data T, page Pagination) Response[T] {
	return Response[T]{Data: data, Code: http.StatusOK, Pagination: &page, Message: "ok"}
}

// Error builds a response with no data. The message is returned to clients
// verbatim, so it must not carry internal details.
func Error(code int, message string) Response[any] {
	return Response[any]{Code: code, Message: message}
}

// NewPagination computes the page window for total items. Page is 1-based;
// values below 1 are clamped. It returns the pagination and the [start, end)
// slice bounds into the full list.
func NewPagination(page, pageSize, total int) (p Pagination, start, end int) {
	if pageSize < 1 {
		pageSize = 1
	}
	if page < 1 {
		page = 1
	}
	totalPages := (total + pageSize - 1) / pageSize

	start = (page - 1) * pageSize
	if start > total {
		start = total
	}
	end = start + pageSize
	if end > total {
		end = total
	}

	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}, start, end
}

// Write encodes resp as JSON using resp.Code as the HTTP status.
func Write[T any](w http.ResponseWriter, resp Response[T]) error {
	if resp.Code == 0 {
		resp.Code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Code)
	return json.NewEncoder(w).Encode(resp)
}
