package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"

	"github.com/bazarlink/bazarlink/internal/delivery/application"
	"github.com/bazarlink/bazarlink/internal/geo"
	orderdom "github.com/bazarlink/bazarlink/internal/order/domain"
	"github.com/bazarlink/bazarlink/internal/web"
	"github.com/bazarlink/bazarlink/pkg/metrics"
)

var tracer = otel.Tracer("delivery-http")

type Handler struct {
	log     *slog.Logger
	service *application.Service
	metrics *metrics.Metrics
}

func NewHandler(log *slog.Logger, service *application.Service, m *metrics.Metrics) *Handler {
	return &Handler{log: log, service: service, metrics: m}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.act)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "delivery.list")
	defer span.End()

	partnerID := r.URL.Query().Get("partnerId")
	serviceArea := r.URL.Query().Get("serviceArea")

	var loc *geo.Point
	if latS, lngS := r.URL.Query().Get("lat"), r.URL.Query().Get("lng"); latS != "" && lngS != "" {
		lat, errLat := strconv.ParseFloat(latS, 64)
		lng, errLng := strconv.ParseFloat(lngS, 64)
		if errLat != nil || errLng != nil {
			web.Error(w, http.StatusBadRequest, "lat and lng must be numbers")
			return
		}
		pt, err := geo.NewPoint(lng, lat)
		if err != nil {
			web.Error(w, http.StatusBadRequest, "coordinates out of range")
			return
		}
		loc = &pt
	}

	res, err := h.service.List(ctx, partnerID, serviceArea, loc)
	if err != nil {
		web.Error(w, status(err), err.Error())
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"myOrders":        web.FromOrders(res.MyOrders),
		"availableOrders": web.FromOrders(res.AvailableOrders),
	})
}

type actionRequest struct {
	OrderID   string `json:"orderId"`
	PartnerID string `json:"partnerId"`
	Action    string `json:"action"`
	OTP       string `json:"otp"`
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "delivery.action")
	defer span.End()

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		order orderdom.Order
		err   error
	)
	switch req.Action {
	case "accept":
		order, err = h.service.Accept(ctx, req.OrderID, req.PartnerID)
	case "picked_up":
		order, err = h.service.PickedUp(ctx, req.OrderID, req.PartnerID)
	case "delivered":
		order, err = h.service.Delivered(ctx, req.OrderID, req.PartnerID, req.OTP)
		if err == nil {
			h.metrics.OrdersDelivered.Inc()
		}
	case "cancel":
		order, err = h.service.Cancel(ctx, req.OrderID, req.PartnerID)
		if err == nil {
			h.metrics.OrdersCancelled.Inc()
		}
	default:
		err = orderdom.ErrInvalidAction
	}
	if err != nil {
		h.log.WarnContext(ctx, "delivery action rejected",
			"action", req.Action, "order_id", req.OrderID, "partner_id", req.PartnerID, "error", err)
		web.Error(w, status(err), err.Error())
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"order":   web.FromOrder(order),
	})
}

func status(err error) int {
	switch {
	case errors.Is(err, orderdom.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orderdom.ErrAlreadyAssigned),
		errors.Is(err, orderdom.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, orderdom.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, orderdom.ErrInvalidOTP),
		errors.Is(err, orderdom.ErrInvalidAction),
		errors.Is(err, orderdom.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
