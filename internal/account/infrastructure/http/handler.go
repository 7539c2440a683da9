package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bazarlink/bazarlink/internal/account/application"
	"github.com/bazarlink/bazarlink/internal/account/domain"
	"github.com/bazarlink/bazarlink/internal/web"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("account-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/location", h.updateLocation)
	r.Post("/availability", h.setAvailability)
	return r
}

type registerReq struct {
	Name        string `json:"name"`
	Identifier  string `json:"identifier"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	Address     string `json:"address"`
	Bazar       string `json:"bazar"`
	VehicleType string `json:"vehicleType"`
	ServiceArea string `json:"serviceArea"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Register")
	defer span.End()

	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.Error(w, http.StatusBadRequest, "invalid body")
		return
	}
	u, err := h.service.Register(ctx, application.RegisterInput{
		Name:        req.Name,
		Identifier:  req.Identifier,
		Password:    req.Password,
		Role:        domain.Role(req.Role),
		Address:     req.Address,
		Bazar:       req.Bazar,
		VehicleType: req.VehicleType,
		ServiceArea: req.ServiceArea,
	})
	if err != nil {
		web.Error(w, status(err), err.Error())
		return
	}
	web.JSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    map[string]any{"id": u.ID, "name": u.Name, "role": u.Role},
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Login")
	defer span.End()

	var req struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
		Role       string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.Error(w, http.StatusBadRequest, "invalid body")
		return
	}
	u, err := h.service.Authenticate(ctx, req.Identifier, req.Password, domain.Role(req.Role))
	if err != nil {
		web.Error(w, status(err), err.Error())
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user": map[string]any{
			"id":          u.ID,
			"name":        u.Name,
			"role":        u.Role,
			"bazar":       u.Bazar,
			"address":     u.Address,
			"vehicleType": u.VehicleType,
			"serviceArea": u.ServiceArea,
		},
	})
}

func (h *Handler) updateLocation(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateLocation")
	defer span.End()

	var req struct {
		UserID string  `json:"userId"`
		Lng    float64 `json:"lng"`
		Lat    float64 `json:"lat"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		web.Error(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.service.UpdateLocation(ctx, req.UserID, req.Lng, req.Lat); err != nil {
		web.Error(w, status(err), err.Error())
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) setAvailability(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SetAvailability")
	defer span.End()

	var req struct {
		UserID string `json:"userId"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		web.Error(w, http.StatusBadRequest, "invalid body")
		return
	}
	st := domain.Availability(req.Status)
	if st != domain.Available && st != domain.Busy {
		web.Error(w, http.StatusBadRequest, "status must be available or busy")
		return
	}
	if err := h.service.SetAvailability(ctx, req.UserID, st); err != nil {
		web.Error(w, status(err), err.Error())
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func status(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
