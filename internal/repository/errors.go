package repository

import "errors"

// ErrNotFound indicates the requested record does not exist. Consumers of the
// blob store treat it as "absent", not as a failure.
var ErrNotFound = errors.New("repository: not found")
