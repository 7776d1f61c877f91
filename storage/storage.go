package storage

import "errors"

// ErrNotFound is returned by Get and TTL when the key does not exist or has
// expired.
var ErrNotFound = errors.New("storage: key not found")

var errWrongType = errors.New("storage: WRONGTYPE operation against a key holding the wrong kind of value")

// NoExpiry is returned by TTL for keys that exist without a timeout.
const NoExpiry = -1
