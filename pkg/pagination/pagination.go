package pagination

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
	// MaxPage keeps (page-1)*limit within int32.
	MaxPage = math.MaxInt32 / MaxLimit
)

// Params holds page-based pagination parameters extracted from a request.
type Params struct {
	Page  int
	Limit int
}

// FromContext reads ?page= and ?limit=. Missing, non-numeric or
// non-positive values fall back to the defaults; limit is capped at MaxLimit
// and page at MaxPage.
func FromContext(c echo.Context) Params {
	return New(c.QueryParam("page"), c.QueryParam("limit"))
}

// New builds Params from raw query values.
func New(page, limit string) Params {
	p, _ := strconv.Atoi(page)
	if p <= 0 {
		p = DefaultPage
	}
	if p > MaxPage {
		p = MaxPage
	}
	l, _ := strconv.Atoi(limit)
	if l <= 0 {
		l = DefaultLimit
	}
	if l > MaxLimit {
		l = MaxLimit
	}
	return Params{Page: p, Limit: l}
}

// Offset is the number of rows to skip.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Meta describes the window returned to the client.
type Meta struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// Page is the data payload of every list endpoint.
type Page[T any] struct {
	Items      []T  `json:"items"`
	Pagination Meta `json:"pagination"`
}

// NewPage wraps one window of results. Items is never nil so it encodes as [].
func NewPage[T any](items []T, total int, p Params) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items: items,
		Pagination: Meta{
			Total: total,
			Page:  p.Page,
			Limit: p.Limit,
			Pages: Pages(total, p.Limit),
		},
	}
}

// Pages returns ceil(total/limit).
func Pages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
