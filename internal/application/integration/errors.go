package integration

import "errors"

// ErrRunInProgress is reported when a manual run gave up waiting for the run gate
var ErrRunInProgress = errors.New("integration: another sync run is in progress")

// ErrChunkTruncated is reported when an id chunk still returns full pages at the page limit
var ErrChunkTruncated = errors.New("integration: specific order chunk exceeded the page limit")
