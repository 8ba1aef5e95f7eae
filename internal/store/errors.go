package store

import "errors"

// Typed store errors the catalog and API layers branch on (§4.1, §7).
var (
	ErrDuplicateURL  = errors.New("store: item with this url already exists for owner")
	ErrQuotaExceeded = errors.New("store: daily add quota exceeded")
	ErrInvalidURL    = errors.New("store: invalid url")
	ErrNotFound      = errors.New("store: record not found")
	ErrEngineFatal   = errors.New("store: fatal storage engine error")
)
