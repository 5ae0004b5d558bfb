package handler

import "github.com/erp/ordersync/internal/interfaces/http/dto"

// The types below only document the dto.Response envelope in the OpenAPI
// annotations; handlers write dto.Response directly.

// APIResponse is the success envelope with a typed data payload.
// A failed sync run also uses it, with success=false and the run result in data.
// @Description Response envelope
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// ErrorResponse is the envelope of every 4xx/5xx answer
// @Description Error envelope with a machine readable code
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}
