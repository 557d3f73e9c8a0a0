// Package httpapi exposes the inventory and order operations as a JSON API
// for the presentation layer.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"stockroom/internal/core"
	blobcore "stockroom/internal/infra/blob/core"
	"stockroom/pkg/domain"
)

const maxBodyBytes = 1 << 20

// Service is the subset of core.Service the API calls.
type Service interface {
	UpsertItemByName(ctx context.Context, name string, delta int, source domain.Provenance) (domain.InventoryItem, error)
	GetItem(ctx context.Context, id string) (domain.InventoryItem, error)
	ListItems(ctx context.Context) ([]domain.InventoryItem, error)
	DeleteItem(ctx context.Context, id string) error
	RegisterRecognition(ctx context.Context, rec core.Recognition) (domain.InventoryItem, error)
	CreateOrder(ctx context.Context, draft core.OrderDraft) (domain.Order, error)
	GetOrder(ctx context.Context, id int64) (domain.Order, error)
	ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
	CompleteOrder(ctx context.Context, id int64) (core.Completion, error)
	CancelOrder(ctx context.Context, id int64) error
	Report(ctx context.Context) (core.Report, error)
	ArchiveReport(ctx context.Context) (blobcore.Info, error)
	ListReportArchives(ctx context.Context) ([]blobcore.Info, error)
	GetReportArchive(ctx context.Context, name string) (core.ArchivedReport, error)
	ReportArchiveLink(ctx context.Context, name string) (core.ArchiveLink, error)
	DeleteReportArchive(ctx context.Context, name string) error
}

// Handler routes /api/v1 requests to the service.
type Handler struct {
	svc    Service
	logger *zap.Logger
	mux    *http.ServeMux
}

// NewHandler constructs the API handler. logger may be nil.
func NewHandler(svc Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{svc: svc, logger: logger.Named("http"), mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /api/v1/items", h.handleListItems)
	h.mux.HandleFunc("POST /api/v1/items", h.handleUpsertItem)
	h.mux.HandleFunc("GET /api/v1/items/{id}", h.handleGetItem)
	h.mux.HandleFunc("DELETE /api/v1/items/{id}", h.handleDeleteItem)
	h.mux.HandleFunc("POST /api/v1/recognitions", h.handleRecognition)
	h.mux.HandleFunc("GET /api/v1/orders", h.handleListOrders)
	h.mux.HandleFunc("POST /api/v1/orders", h.handleCreateOrder)
	h.mux.HandleFunc("GET /api/v1/orders/{id}", h.handleGetOrder)
	h.mux.HandleFunc("DELETE /api/v1/orders/{id}", h.handleCancelOrder)
	h.mux.HandleFunc("POST /api/v1/orders/{id}/complete", h.handleCompleteOrder)
	h.mux.HandleFunc("GET /api/v1/report", h.handleReport)
	h.mux.HandleFunc("POST /api/v1/report/archive", h.handleArchiveReport)
	h.mux.HandleFunc("GET /api/v1/report/archives", h.handleListArchives)
	h.mux.HandleFunc("GET /api/v1/report/archives/{name}", h.handleGetArchive)
	h.mux.HandleFunc("GET /api/v1/report/archives/{name}/link", h.handleArchiveLink)
	h.mux.HandleFunc("DELETE /api/v1/report/archives/{name}", h.handleDeleteArchive)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		writeError(w, http.StatusInternalServerError, "service not configured")
		return
	}
	h.mux.ServeHTTP(w, r)
}

type upsertItemRequest struct {
	Name     string            `json:"name"`
	Quantity int               `json:"quantity"`
	Source   domain.Provenance `json:"source"`
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListItems(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleUpsertItem(w http.ResponseWriter, r *http.Request) {
	var req upsertItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := h.svc.UpsertItemByName(r.Context(), req.Name, req.Quantity, req.Source)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRecognition accepts the classifier's raw response body.
func (h *Handler) handleRecognition(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}
	rec, err := core.ParseRecognition(raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	item, err := h.svc.RegisterRecognition(r.Context(), rec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item, "recognition": rec})
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListOrders(r.Context(), domain.OrderStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var draft core.OrderDraft
	if !decodeBody(w, r, &draft) {
		return
	}
	order, err := h.svc.CreateOrder(r.Context(), draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	if err := h.svc.CancelOrder(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCompleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	completion, err := h.svc.CompleteOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completion)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Report(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleArchiveReport(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.ArchiveReport(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"archive": info})
}

type archiveSummary struct {
	Name string `json:"name"`
	blobcore.Info
}

func (h *Handler) handleListArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.svc.ListReportArchives(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]archiveSummary, 0, len(infos))
	for _, info := range infos {
		out = append(out, archiveSummary{Name: core.ArchiveName(info), Info: info})
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": out})
}

func (h *Handler) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	archived, err := h.svc.GetReportArchive(r.Context(), r.PathValue("name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, archived)
}

func (h *Handler) handleArchiveLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.svc.ReportArchiveLink(r.Context(), r.PathValue("name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (h *Handler) handleDeleteArchive(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteReportArchive(r.Context(), r.PathValue("name")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid order id %q", raw))
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

// statusFor maps error codes onto HTTP statuses.
func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInsufficientStock, domain.CodeInvalidState, domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error      string                  `json:"error"`
	Code       domain.Code             `json:"code"`
	Violations []domain.FieldViolation `json:"violations,omitempty"`
	Shortfalls []domain.Shortfall      `json:"shortfalls,omitempty"`
	Details    []string                `json:"details,omitempty"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	status := statusFor(code)
	resp := errorResponse{Error: err.Error(), Code: code}
	var (
		invalid      domain.InvalidArgumentError
		insufficient domain.InsufficientStockError
	)
	if errors.As(err, &invalid) {
		resp.Violations = invalid.Violations
	}
	if errors.As(err, &insufficient) {
		resp.Shortfalls = insufficient.Shortfalls
		resp.Details = insufficient.Lines()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	if code == domain.CodeUnavailable || code == domain.CodeConflict {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
