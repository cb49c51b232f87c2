package domain

import "errors"

var errNilID = errors.New("id must not be the nil UUID")
