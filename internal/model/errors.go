package model

import "errors"

// ErrInvalidArgument marks structurally invalid configuration such as an unknown
// market calendar, a negative precision or an intraday series without volume.
var ErrInvalidArgument = errors.New("invalid argument")
