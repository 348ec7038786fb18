package storage

import "errors"

// ErrNotFound is returned by stores that can tell a missing key apart.
var ErrNotFound = errors.New("object not found")
