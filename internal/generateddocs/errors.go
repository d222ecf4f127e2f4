package generateddocs

import "errors"

// ErrNotFound indicates no generated document exists for the lookup.
var ErrNotFound = errors.New("generated document not found")
