package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/interfaces/http/dto"
)

// NoteUpdater writes the operator annotation of one order row
type NoteUpdater interface {
	UpdateLocalNote(ctx context.Context, orderID string, storeName *string, note string) error
}

// OrderHandler handles order read and annotation endpoints
type OrderHandler struct {
	BaseHandler
	orders OrderSyncer
	notes  NoteUpdater
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders OrderSyncer, notes NoteUpdater) *OrderHandler {
	return &OrderHandler{orders: orders, notes: notes}
}

// GetOrder godoc
// @ID           getOrder
// @Summary      Get an order
// @Description  Returns every stored row of the order id. Stale rows are refreshed from the remote API first.
// @Tags         orders
// @Produce      json
// @Param        order_id path string true "Remote order id"
// @Success      200 {object} APIResponse[OrderDetailResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /orders/{order_id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("order_id"))
	if orderID == "" {
		h.BadRequest(c, "order id is required")
		return
	}

	result := h.orders.RefreshOneOrder(c.Request.Context(), orderID)
	if !result.Success {
		if result.Msg == integration.ErrOrderNotFound.Error() {
			h.NotFound(c, result.Msg)
			return
		}
		h.ErrorWithCode(c, dto.ErrCodeStorage, result.Msg)
		return
	}

	resp := OrderDetailResponse{
		Orders:    make([]OrderResponse, 0, len(result.Orders)),
		Refreshed: result.Refreshed,
		Outcome:   result.Outcome,
	}
	if result.Order != nil {
		resp.Order = toOrderResponse(*result.Order)
	}
	for _, o := range result.Orders {
		resp.Orders = append(resp.Orders, toOrderResponse(o))
	}
	h.Success(c, resp)
}

// UpdateNote godoc
// @ID           updateOrderNote
// @Summary      Set the local note of an order
// @Description  Omitting store_name addresses the legacy unscoped row.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        order_id path string true "Remote order id"
// @Param        request body UpdateNoteRequest true "Note"
// @Success      200 {object} APIResponse[map[string]string]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /orders/{order_id}/note [patch]
func (h *OrderHandler) UpdateNote(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("order_id"))
	if orderID == "" {
		h.BadRequest(c, "order id is required")
		return
	}

	var req UpdateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	storeName := req.StoreName
	if storeName != nil {
		trimmed := strings.TrimSpace(*storeName)
		storeName = &trimmed
		if trimmed == "" {
			storeName = nil
		}
	}

	if err := h.notes.UpdateLocalNote(c.Request.Context(), orderID, storeName, *req.Note); err != nil {
		h.HandleError(c, wrapStorage(err))
		return
	}
	h.Success(c, gin.H{"order_id": orderID, "local_note": *req.Note})
}

// wrapStorage tags unexpected repository errors as persistence failures
func wrapStorage(err error) error {
	if err == nil || errors.Is(err, integration.ErrOrderNotFound) {
		return err
	}
	return integration.WrapPersistence(err)
}
