package report

import "errors"

var (
	ErrInvalidDimension   = errors.New("report: invalid rollup dimension")
	ErrUnknownMarketplace = errors.New("report: unknown marketplace")
)
