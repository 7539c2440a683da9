package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	catalogdom "github.com/bazarlink/bazarlink/internal/catalog/domain"
	"github.com/bazarlink/bazarlink/internal/order/application"
	"github.com/bazarlink/bazarlink/internal/order/domain"
	"github.com/bazarlink/bazarlink/internal/web"
	"github.com/bazarlink/bazarlink/pkg/metrics"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, m *metrics.Metrics) *Handler {
	return &Handler{
		log:     log,
		service: service,
		metrics: m,
		tracer:  otel.Tracer("order-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.place)
	r.Get("/", h.byCustomer)
	r.Get("/{id}", h.get)
	r.Put("/", h.cancel)
	return r
}

type placeReq struct {
	CustomerID string `json:"customerId"`
	Items      []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	DeliveryType string `json:"deliveryType"`
	Address      string `json:"address"`
	DropLocation *struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"dropLocation"`
	DeliveryFee int64  `json:"deliveryFee"`
	Bazar       string `json:"bazar"`
}

func (h *Handler) place(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PlaceOrder")
	defer span.End()

	var req placeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.Error(w, http.StatusBadRequest, "invalid body")
		return
	}

	in := application.PlaceInput{
		CustomerID:   req.CustomerID,
		DeliveryType: domain.DeliveryType(req.DeliveryType),
		Address:      req.Address,
		DeliveryFee:  req.DeliveryFee,
		Bazar:        req.Bazar,
	}
	if req.DeliveryType == "" {
		in.DeliveryType = domain.DeliveryTypePickup
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, application.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if req.DropLocation != nil {
		in.Drop = &application.LatLng{Lat: req.DropLocation.Lat, Lng: req.DropLocation.Lng}
	}

	o, err := h.service.Place(ctx, in)
	if err != nil {
		if errors.Is(err, catalogdom.ErrStockConflict) {
			h.metrics.StockConflicts.Inc()
		}
		web.Error(w, status(err), err.Error())
		return
	}
	h.metrics.OrdersPlaced.Inc()
	web.JSON(w, http.StatusCreated, map[string]any{"success": true, "order": web.FromOrder(o)})
}

func (h *Handler) byCustomer(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "OrdersByCustomer")
	defer span.End()

	customerID := r.URL.Query().Get("customerId")
	orders, err := h.service.ByCustomer(ctx, customerID)
	if err != nil {
		web.Error(w, status(err), err.Error())
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "orders": web.FromOrders(orders)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	o, err := h.service.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		web.Error(w, status(err), err.Error())
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "order": web.FromOrder(o)})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelOrder")
	defer span.End()

	var req struct {
		OrderID string `json:"orderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		web.Error(w, http.StatusBadRequest, "order id required")
		return
	}
	if err := h.service.Cancel(ctx, req.OrderID); err != nil {
		web.Error(w, status(err), err.Error())
		return
	}
	h.metrics.OrdersCancelled.Inc()
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "order cancelled and stock restored"})
}

func status(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, catalogdom.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrWindowExpired), errors.Is(err, domain.ErrAlreadyCancelled):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, catalogdom.ErrOutOfStock),
		errors.Is(err, catalogdom.ErrStockConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
