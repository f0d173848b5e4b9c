package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	kafkax "github.com/ariefcatur/go-order-catalog/internal/kafka"
	"github.com/ariefcatur/go-order-catalog/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	readTimeout  = 3 * time.Second
	writeTimeout = 5 * time.Second
	maxBodyBytes = 1 << 20
)

type OrderStore interface {
	ListOrders(ctx context.Context) ([]orders.OrderSummary, error)
	GetOrder(ctx context.Context, id int64) (orders.OrderDetail, error)
	CreateOrder(ctx context.Context, in orders.OrderInput) (orders.Order, error)
	UpdateOrder(ctx context.Context, id int64, in orders.OrderInput) (orders.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

type OrderCache interface {
	Get(ctx context.Context, id int64) (orders.OrderDetail, int64, bool)
	Set(ctx context.Context, d orders.OrderDetail, version int64)
	Invalidate(ctx context.Context, id int64)
}

type EventPublisher interface {
	Publish(key, value []byte, headers ...kafkago.Header) bool
}

// OrdersHandler serves the order API. Cache and Producer are optional.
type OrdersHandler struct {
	Repo     OrderStore
	Cache    OrderCache
	Producer EventPublisher
	Service  string
	Log      *zap.Logger
}

// orderRequest accepts orderDescription as an alias of description.
type orderRequest struct {
	Description      *string `json:"description"`
	OrderDescription *string `json:"orderDescription"`
	ProductIDs       []int64 `json:"productIds"`
}

func (req orderRequest) input() orders.OrderInput {
	in := orders.OrderInput{ProductIDs: req.ProductIDs}
	switch {
	case req.Description != nil:
		in.Description = *req.Description
	case req.OrderDescription != nil:
		in.Description = *req.OrderDescription
	}
	return in
}

type deleteResp struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	r.Get("/order", h.listOrders)
	r.Get("/order/{id}", h.getOrder)
	r.Post("/orders", h.createOrder)
	r.Put("/orders/{id}", h.updateOrder)
	r.Delete("/orders/{id}", h.deleteOrder)
	r.Get("/products", h.listProducts)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	list, err := h.Repo.ListOrders(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	var ver int64 = -1
	if h.Cache != nil {
		d, v, hit := h.Cache.Get(ctx, id)
		if hit {
			writeJSON(w, http.StatusOK, d)
			return
		}
		ver = v
	}

	d, err := h.Repo.GetOrder(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.Cache != nil {
		h.Cache.Set(ctx, d, ver)
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOrder(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	in := req.input()
	o, err := h.Repo.CreateOrder(ctx, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.publish(r, orders.EventOrderCreated, o.ID, changedPayload(o, in.ProductIDs))
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	req, ok := decodeOrder(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	in := req.input()
	o, err := h.Repo.UpdateOrder(ctx, id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.Cache != nil {
		h.Cache.Invalidate(ctx, id)
	}

	h.publish(r, orders.EventOrderUpdated, o.ID, changedPayload(o, in.ProductIDs))
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	if err := h.Repo.DeleteOrder(ctx, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.Cache != nil {
		h.Cache.Invalidate(ctx, id)
	}

	h.publish(r, orders.EventOrderDeleted, id, orders.OrderDeletedPayload{OrderID: id})
	writeJSON(w, http.StatusOK, deleteResp{Message: "order deleted", ID: id})
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	ps, err := h.Repo.ListProducts(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// publish emits a committed change. Delivery is best effort and never fails
// the request.
func (h *OrdersHandler) publish(r *http.Request, eventType string, id int64, payload any) {
	if h.Producer == nil {
		return
	}
	traceID := r.Header.Get("X-Request-Id")
	if traceID == "" {
		traceID = middleware.GetReqID(r.Context())
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  orders.EventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       traceID,
		CorrelationID: strconv.FormatInt(id, 10),
		Payload:       kafkax.MustMarshal(payload),
	}
	ok := h.Producer.Publish(orders.PartitionKey(id), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(orders.EventVersion))},
	)
	if !ok {
		h.Log.Warn("order event dropped", zap.String("event_type", eventType), zap.Int64("order_id", id))
	}
}

func changedPayload(o orders.Order, productIDs []int64) orders.OrderChangedPayload {
	if productIDs == nil {
		productIDs = []int64{}
	}
	return orders.OrderChangedPayload{
		OrderID:     o.ID,
		Description: o.Description,
		CreatedAt:   o.CreatedAt,
		ProductIDs:  productIDs,
	}
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid order id"})
		return 0, false
	}
	return id, true
}

func decodeOrder(w http.ResponseWriter, r *http.Request) (orderRequest, bool) {
	var req orderRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return req, false
	}
	return req, true
}
