package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	appPickup "github.com/greenloop/recyclemart/internal/application/pickup"
	appPurchase "github.com/greenloop/recyclemart/internal/application/purchase"
	domListing "github.com/greenloop/recyclemart/internal/domain/listing"
	domPayment "github.com/greenloop/recyclemart/internal/domain/payment"
	domPickup "github.com/greenloop/recyclemart/internal/domain/pickup"
	domPurchase "github.com/greenloop/recyclemart/internal/domain/purchase"
	"github.com/greenloop/recyclemart/internal/observability"
	"github.com/greenloop/recyclemart/internal/observability/logctx"
)

type Handler struct {
	pickupService   *appPickup.Service
	purchaseService *appPurchase.Service
	validate        *validatorv10.Validate
	log             observability.Logger
	tel             observability.Observability
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
)

func NewHandler(pickupSvc *appPickup.Service, purchaseSvc *appPurchase.Service,
	logger observability.Logger, tel observability.Observability,
) *Handler {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = observability.NopLogger()
	}
	return &Handler{
		pickupService:   pickupSvc,
		purchaseService: purchaseSvc,
		validate:        validatorv10.New(),
		log:             baseLogger.With(observability.F("component", componentHTTPHandler)),
		tel:             tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Wire each route with middlewares:
	// Trace → ObservabilityMiddleware (request logger) → HTTP metrics → Access log → Handler
	h.muxHandle(mux, http.MethodPost, "/pickups", h.handleSubmitPickup)
	h.muxHandle(mux, http.MethodPost, "/pickups/approve", h.handleApprovePickup)
	h.muxHandle(mux, http.MethodPost, "/pickups/reject", h.handleRejectPickup)
	h.muxHandle(mux, http.MethodGet, "/pickups/get", h.handleGetPickup)
	h.muxHandle(mux, http.MethodPost, "/purchases", h.handlePurchase)
	h.muxHandle(mux, http.MethodGet, "/items/get", h.handleGetItem)
	h.muxHandle(mux, http.MethodGet, "/health", h.handleHealth)

	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, method, route string, handler http.HandlerFunc) {
	mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		// Store stable route template for low-cardinality labels
		ctx := contextWithRoute(r.Context(), route)
		r = r.WithContext(ctx)

		wrapped := h.withTrace(
			ObservabilityMiddleware(
				logctx.FromOr(ctx, h.log),
				func(r *http.Request) string {
					return r.Header.Get(headerRequestID)
				},
			)(
				h.withAccessLog(
					h.withHTTPMetrics(http.HandlerFunc(handler)),
				),
			),
		)
		wrapped.ServeHTTP(w, r)
	})
}

type submitPickupRequest struct {
	RequesterID  string   `json:"requester_id" validate:"required"`
	MaterialType string   `json:"material_type" validate:"required"`
	Quantity     int      `json:"quantity" validate:"required,min=1"`
	Unit         string   `json:"unit" validate:"required"`
	PricePerUnit string   `json:"price_per_unit" validate:"required"`
	Description  string   `json:"description"`
	Images       []string `json:"images"`
}

func (h *Handler) handleSubmitPickup(w http.ResponseWriter, r *http.Request) {
	var req submitPickupRequest
	if err := h.bind(r, &req); err != nil {
		writeValidationError(w, err)
		return
	}
	price, err := decimal.NewFromString(req.PricePerUnit)
	if err != nil || price.LessThanOrEqual(decimal.Zero) {
		writeError(w, http.StatusBadRequest, errors.New("price_per_unit must be a positive decimal"))
		return
	}

	result, err := h.pickupService.Submit(r.Context(), appPickup.SubmitInput{
		RequesterID:  req.RequesterID,
		MaterialType: req.MaterialType,
		Quantity:     req.Quantity,
		Unit:         req.Unit,
		PricePerUnit: price,
		Description:  req.Description,
		Images:       req.Images,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pickupResponse(result))
}

type approvePickupRequest struct {
	RequestID string `json:"request_id" validate:"required"`
	AdminID   string `json:"admin_id" validate:"required"`
	Notes     string `json:"notes"`
}

func (h *Handler) handleApprovePickup(w http.ResponseWriter, r *http.Request) {
	var req approvePickupRequest
	if err := h.bind(r, &req); err != nil {
		writeValidationError(w, err)
		return
	}

	result, err := h.pickupService.Approve(r.Context(), appPickup.ApproveInput{
		RequestID: req.RequestID,
		AdminID:   req.AdminID,
		Notes:     req.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pickupResponse(result))
}

type rejectPickupRequest struct {
	RequestID string `json:"request_id" validate:"required"`
	AdminID   string `json:"admin_id" validate:"required"`
	Notes     string `json:"notes"`
}

func (h *Handler) handleRejectPickup(w http.ResponseWriter, r *http.Request) {
	var req rejectPickupRequest
	if err := h.bind(r, &req); err != nil {
		writeValidationError(w, err)
		return
	}

	result, err := h.pickupService.Reject(r.Context(), appPickup.RejectInput{
		RequestID: req.RequestID,
		AdminID:   req.AdminID,
		Notes:     req.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pickupResponse(result))
}

func (h *Handler) handleGetPickup(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	result, err := h.pickupService.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pickupResponse(result))
}

type purchaseRequest struct {
	ItemID   string `json:"item_id" validate:"required"`
	BuyerID  string `json:"buyer_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type purchaseResponse struct {
	PurchaseID    string `json:"purchase_id"`
	ItemID        string `json:"item_id"`
	Quantity      int    `json:"quantity"`
	PricePerUnit  string `json:"price_per_unit"`
	TotalAmount   string `json:"total_amount"`
	PaymentStatus string `json:"payment_status"`
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := h.bind(r, &req); err != nil {
		writeValidationError(w, err)
		return
	}

	result, err := h.purchaseService.Purchase(r.Context(), appPurchase.PurchaseInput{
		ItemID:   req.ItemID,
		BuyerID:  req.BuyerID,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, purchaseResponse{
		PurchaseID:    result.ID,
		ItemID:        result.ItemID,
		Quantity:      result.Quantity,
		PricePerUnit:  result.PricePerUnit.String(),
		TotalAmount:   result.TotalAmount.String(),
		PaymentStatus: string(result.PaymentStatus),
	})
}

type itemResponse struct {
	ItemID       string `json:"item_id"`
	OwnerID      string `json:"owner_id"`
	MaterialType string `json:"material_type"`
	Quantity     int    `json:"quantity"`
	Unit         string `json:"unit"`
	PricePerUnit string `json:"price_per_unit"`
	IsAvailable  bool   `json:"is_available"`
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	item, err := h.purchaseService.GetItem(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{
		ItemID:       item.ID,
		OwnerID:      item.OwnerID,
		MaterialType: item.MaterialType,
		Quantity:     item.Quantity,
		Unit:         item.Unit,
		PricePerUnit: item.PricePerUnit.String(),
		IsAvailable:  item.IsAvailable,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type pickupDTO struct {
	RequestID    string `json:"request_id"`
	RequesterID  string `json:"requester_id"`
	MaterialType string `json:"material_type"`
	Quantity     int    `json:"quantity"`
	Unit         string `json:"unit"`
	PricePerUnit string `json:"price_per_unit"`
	Status       string `json:"status"`
	AdminID      string `json:"admin_id,omitempty"`
	AdminNotes   string `json:"admin_notes,omitempty"`
}

func pickupResponse(r *domPickup.Request) pickupDTO {
	return pickupDTO{
		RequestID:    r.ID,
		RequesterID:  r.RequesterID,
		MaterialType: r.MaterialType,
		Quantity:     r.Quantity,
		Unit:         r.Unit,
		PricePerUnit: r.ProposedPricePerUnit.String(),
		Status:       string(r.Status),
		AdminID:      r.AdminID,
		AdminNotes:   r.AdminNotes,
	}
}

// bind decodes the JSON body and runs struct validation; validation failures
// are the uniform malformed-input error kind handled upstream of the sagas.
func (h *Handler) bind(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeValidationError(w http.ResponseWriter, err error) {
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation_failed",
			"fields": fields,
		})
		return
	}
	writeError(w, http.StatusBadRequest, err)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domPickup.ErrNotFound),
		errors.Is(err, domListing.ErrNotFound),
		errors.Is(err, domPurchase.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domPayment.ErrPaymentFailed):
		writeError(w, http.StatusPaymentRequired, err)
	case errors.Is(err, domPickup.ErrInvalidState),
		errors.Is(err, domPickup.ErrConflict),
		errors.Is(err, domListing.ErrConflict),
		errors.Is(err, domListing.ErrNotAvailable),
		errors.Is(err, domListing.ErrInsufficientQuantity),
		errors.Is(err, domListing.ErrAlreadyPublished):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domPickup.ErrInvalidQuantity),
		errors.Is(err, domPickup.ErrInvalidPrice),
		errors.Is(err, domPickup.ErrMissingField),
		errors.Is(err, domListing.ErrInvalidQuantity),
		errors.Is(err, domPurchase.ErrInvalidQuantity),
		errors.Is(err, domPurchase.ErrMissingField):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}

func statusText(code int) string { return strconv.Itoa(code) }

func attributeString(k, v string) attribute.KeyValue { return attribute.String(k, v) }
