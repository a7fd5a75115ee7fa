package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"
)

type SearchMessages struct {
	index SearchIndex
}

func NewSearchMessages(index SearchIndex) *SearchMessages {
	return &SearchMessages{index: index}
}

func (uc *SearchMessages) Execute(ctx context.Context, text string, page int) (*message.SearchResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: search text is empty", message.ErrValidation)
	}

	from, size := message.Offset(page), message.PageSize
	if from > message.MaxResultWindow-size {
		// Past the deepest page the index serves: report the total only.
		from, size = 0, 0
	}

	res, err := uc.index.Search(ctx, text, from, size)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	if size == 0 || res.Results == nil {
		res.Results = []message.Message{}
	}
	return res, nil
}
