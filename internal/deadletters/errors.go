package deadletters

import "errors"

var (
	ErrNotFound        = errors.New("dead letter entry not found")
	ErrAlreadyResolved = errors.New("dead letter entry already resolved")
)
