package wzdx

import "errors"

var (
	errEmptyEventID   = errors.New("event has no id")
	errBadCoordinates = errors.New("event coordinates out of range")
	errNoStartTime    = errors.New("event has no start time")
)
