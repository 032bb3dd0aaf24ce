package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tabslip/api/internal/service"
	"github.com/tabslip/api/internal/store"
)

// OrderHandler exposes order placement and the kitchen-side order
// status surface.
type OrderHandler struct {
	sessions *service.SessionService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(sessions *service.SessionService) *OrderHandler {
	return &OrderHandler{sessions: sessions}
}

// --- Request / Response types ---

type placeOrderRequest struct {
	SessionID    string                  `json:"session_id"`
	TableNumber  int32                   `json:"table_number"`
	CustomerName string                  `json:"customer_name"`
	Items        []placeOrderItemRequest `json:"items"`
}

type placeOrderItemRequest struct {
	ProductID string                   `json:"product_id"`
	Name      string                   `json:"name"`
	Quantity  int32                    `json:"quantity"`
	UnitPrice string                   `json:"unit_price"`
	Addons    []placeOrderAddonRequest `json:"addons"`
}

type placeOrderAddonRequest struct {
	AddonID string `json:"addon_id"`
	Name    string `json:"name"`
	Price   string `json:"price"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

type orderResponse struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type placedOrderResponse struct {
	Session sessionResponse     `json:"session"`
	Order   orderResponse       `json:"order"`
	Items   []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	ID        uuid.UUID            `json:"id"`
	ProductID uuid.UUID            `json:"product_id"`
	Name      string               `json:"name"`
	Quantity  int32                `json:"quantity"`
	UnitPrice string               `json:"unit_price"`
	Addons    []orderAddonResponse `json:"addons,omitempty"`
}

type orderAddonResponse struct {
	AddonID uuid.UUID `json:"addon_id"`
	Name    string    `json:"name"`
	Price   string    `json:"price"`
}

func toOrderResponse(o store.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		SessionID: o.SessionID,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

// --- Handlers ---

// Place creates an order, opening or reusing the table's session when
// no session ID is supplied.
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	svcReq := service.PlaceOrderRequest{
		SessionID:    req.SessionID,
		TableNumber:  req.TableNumber,
		CustomerName: req.CustomerName,
	}
	for _, item := range req.Items {
		svcItem := service.PlaceOrderItemRequest{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
		for _, addon := range item.Addons {
			svcItem.Addons = append(svcItem.Addons, service.PlaceOrderAddonRequest{
				AddonID: addon.AddonID,
				Name:    addon.Name,
				Price:   addon.Price,
			})
		}
		svcReq.Items = append(svcReq.Items, svcItem)
	}

	result, err := h.sessions.PlaceOrder(r.Context(), svcReq)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		case errors.Is(err, service.ErrSessionClosed), errors.Is(err, service.ErrOrderAttachmentConflict):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "session is closed"})
		case errors.Is(err, service.ErrEmptyItems),
			errors.Is(err, service.ErrInvalidQuantity),
			errors.Is(err, service.ErrInvalidUnitPrice),
			errors.Is(err, service.ErrInvalidAddonPrice),
			errors.Is(err, service.ErrInvalidProductID),
			errors.Is(err, service.ErrInvalidAddonID),
			errors.Is(err, service.ErrInvalidTableNumber):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: failed to place order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to place order"})
		}
		return
	}

	resp := placedOrderResponse{
		Session: toSessionResponse(result.Session),
		Order:   toOrderResponse(result.Order),
		Items:   make([]orderItemResponse, 0, len(result.Items)),
	}
	for _, it := range result.Items {
		itemResp := orderItemResponse{
			ID:        it.Item.ID,
			ProductID: it.Item.ProductID,
			Name:      it.Item.Name,
			Quantity:  it.Item.Quantity,
			UnitPrice: store.NumericToDecimal(it.Item.UnitPrice).StringFixed(2),
		}
		for _, a := range it.Addons {
			itemResp.Addons = append(itemResp.Addons, orderAddonResponse{
				AddonID: a.AddonID,
				Name:    a.Name,
				Price:   store.NumericToDecimal(a.Price).StringFixed(2),
			})
		}
		resp.Items = append(resp.Items, itemResp)
	}

	writeJSON(w, http.StatusCreated, resp)
}

// UpdateStatus moves an order along the kitchen lifecycle.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	order, err := h.sessions.UpdateOrderStatus(r.Context(), orderID, store.OrderStatus(req.Status))
	if err != nil {
		h.respondOrderError(w, orderID, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// Cancel cancels a single order. The next bill read reflects the
// removal; nothing is recomputed eagerly.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.sessions.CancelOrder(r.Context(), orderID)
	if err != nil {
		h.respondOrderError(w, orderID, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) respondOrderError(w http.ResponseWriter, orderID uuid.UUID, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, service.ErrInvalidOrderStatus):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order status"})
	case errors.Is(err, service.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "invalid order status transition"})
	case errors.Is(err, service.ErrSessionClosed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "session is closed"})
	default:
		log.Printf("ERROR: failed to update order %s: %v", orderID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update order"})
	}
}
