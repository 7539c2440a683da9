package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bazarlink/bazarlink/internal/catalog/application"
	"github.com/bazarlink/bazarlink/internal/catalog/domain"
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
		tracer:  otel.Tracer("catalog-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.upsert)
	r.Patch("/stock", h.addStock)
	r.Delete("/", h.delete)
	return r
}

type upsertReq struct {
	Name            string `json:"name"`
	Category        string `json:"category"`
	Price           int64  `json:"price"`
	Stock           int    `json:"stock"`
	ItemUnit        string `json:"itemUnit"`
	FarmerID        string `json:"farmerId"`
	Bazar           string `json:"bazar"`
	Image           string `json:"image"`
	Savings         int64  `json:"savings"`
	CompetitorPrice int64  `json:"competitorPrice"`
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpsertProduct")
	defer span.End()

	var req upsertReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.Error(w, http.StatusBadRequest, "invalid body")
		return
	}
	p, err := h.service.Upsert(ctx, application.UpsertInput{
		Name:            req.Name,
		Category:        req.Category,
		Price:           req.Price,
		Stock:           req.Stock,
		ItemUnit:        req.ItemUnit,
		FarmerID:        req.FarmerID,
		Bazar:           req.Bazar,
		Image:           req.Image,
		Savings:         req.Savings,
		CompetitorPrice: req.CompetitorPrice,
	})
	if err != nil {
		web.Error(w, status(err), err.Error())
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "product": toView(p)})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListProducts")
	defer span.End()

	products, err := h.service.List(ctx)
	if err != nil {
		web.Error(w, status(err), err.Error())
		return
	}
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, toView(p))
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "products": views})
}

func (h *Handler) addStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AddStock")
	defer span.End()

	var req struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		web.Error(w, http.StatusBadRequest, "invalid body")
		return
	}
	p, err := h.service.AddStock(ctx, req.ProductID, req.Quantity)
	if err != nil {
		web.Error(w, status(err), err.Error())
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "product": toView(p)})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteProduct")
	defer span.End()

	id := r.URL.Query().Get("id")
	if id == "" {
		web.Error(w, http.StatusBadRequest, "product id required")
		return
	}
	if err := h.service.Delete(ctx, id); err != nil {
		web.Error(w, status(err), err.Error())
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func status(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOutOfStock), errors.Is(err, domain.ErrStockConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type productView struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Category        string `json:"category"`
	Price           int64  `json:"price"`
	Stock           int    `json:"stock"`
	ItemUnit        string `json:"itemUnit"`
	FarmerID        string `json:"farmerId,omitempty"`
	Bazar           string `json:"bazar"`
	Image           string `json:"image,omitempty"`
	Savings         int64  `json:"savings,omitempty"`
	CompetitorPrice int64  `json:"competitorPrice,omitempty"`
}

func toView(p domain.Product) productView {
	return productView{
		ID:              p.ID,
		Name:            p.Name,
		Category:        p.Category,
		Price:           p.Price,
		Stock:           p.Stock,
		ItemUnit:        p.ItemUnit,
		FarmerID:        p.FarmerID,
		Bazar:           p.Bazar,
		Image:           p.Image,
		Savings:         p.Savings,
		CompetitorPrice: p.CompetitorPrice,
	}
}
