package store

import "errors"

// ErrNotFound is returned when a lookup fails the combined
// existence-and-ownership check. It deliberately does not distinguish
// "row does not exist" from "row belongs to another owner", so callers
// cannot probe for other owners' data.
var ErrNotFound = errors.New("not found")
