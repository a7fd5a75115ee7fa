package message

import (
	"math"
	"time"
)

const (
	// PageSize is the fixed number of records returned by list and search.
	PageSize = 10
	// MaxPage is the largest page whose offset still fits in an int.
	MaxPage = math.MaxInt/PageSize + 1
	// MaxResultWindow is the deepest from+size the search index serves.
	MaxResultWindow = 10000
)

type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type SearchResult struct {
	Results []Message `json:"results"`
	Total   int64     `json:"total"`
}

// ClampPage maps page into [1, MaxPage].
func ClampPage(page int) int {
	return min(max(page, 1), MaxPage)
}

// Offset returns the number of records to skip for a 1-indexed page.
func Offset(page int) int {
	return (ClampPage(page) - 1) * PageSize
}
