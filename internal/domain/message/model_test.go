package message

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOffset(t *testing.T) {
	tests := []struct {
		page int
		want int
	}{
		{page: math.MinInt, want: 0},
		{page: -1, want: 0},
		{page: 0, want: 0},
		{page: 1, want: 0},
		{page: 2, want: 10},
		{page: 1001, want: 10000},
		{page: MaxPage, want: (MaxPage - 1) * PageSize},
		{page: math.MaxInt, want: (MaxPage - 1) * PageSize},
		{page: 1844674407370955163, want: (MaxPage - 1) * PageSize},
	}

	for _, tt := range tests {
		got := Offset(tt.page)
		assert.Equal(t, tt.want, got, "page %d", tt.page)
		assert.GreaterOrEqual(t, got, 0, "page %d", tt.page)
	}
}
