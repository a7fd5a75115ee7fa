package message

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrStoreUnavailable = errors.New("message store unavailable")
	ErrIndexUnavailable = errors.New("search index unavailable")
)
