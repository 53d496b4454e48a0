package listing

import (
	"github.com/trezcool/shule/core"
)

// Page is one page of a list together with its pagination metadata.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PerPage  int `json:"per_page"`
	LastPage int `json:"last_page"`
	From     int `json:"from"` // 1-based index of the first item, 0 when empty
	To       int `json:"to"`
}

func NewPage[T any](items []T, total int, s State) Page[T] {
	if items == nil {
		items = []T{}
	}
	perPage := s.PerPage
	if perPage < 1 {
		perPage = 1
	}
	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}

	p := Page[T]{
		Items:    items,
		Total:    total,
		Page:     s.Page,
		PerPage:  perPage,
		LastPage: lastPage,
	}
	if len(items) > 0 {
		p.From = (s.Page-1)*perPage + 1
		p.To = p.From + len(items) - 1
	}
	return p
}

func Empty[T any](s State) Page[T] {
	return NewPage[T](nil, 0, s)
}

// OrEmpty renders a store failure as an empty page; the error is logged.
func OrEmpty[T any](items []T, total int, err error, s State, logger core.Logger, what string) Page[T] {
	if err != nil {
		logger.Error("listing "+what, err)
		return Empty[T](s)
	}
	return NewPage(items, total, s)
}
