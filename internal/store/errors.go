package store

import "errors"

// ErrNotFound indicates a missing or disabled resource lookup.
var ErrNotFound = errors.New("record not found")

// ErrInvalidPrefix is returned for table prefixes that are not plain identifiers.
var ErrInvalidPrefix = errors.New("invalid table prefix")
