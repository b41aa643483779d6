package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domlisting "github.com/greenloop/recyclemart/internal/domain/listing"
	domoutbox "github.com/greenloop/recyclemart/internal/domain/outbox"
	dompay "github.com/greenloop/recyclemart/internal/domain/payment"
	domain "github.com/greenloop/recyclemart/internal/domain/purchase"
	domsaga "github.com/greenloop/recyclemart/internal/domain/saga"
	"github.com/greenloop/recyclemart/internal/observability"
	"github.com/greenloop/recyclemart/internal/observability/logctx"
)

const (
	purchaseService        = "purchase-service"
	useCasePurchase        = "purchase.buy"
	spanPrefix             = "UC."
	gatewayPeer            = "payment_gateway"
	endpointPayForPurchase = "pay_for_purchase"
	defaultPaymentTimeout  = 5 * time.Second
	publishTimeout         = 300 * time.Millisecond
	maxDecrementRetries    = 3
)

var (
	ErrNotFound             = domlisting.ErrNotFound
	ErrNotAvailable         = domlisting.ErrNotAvailable
	ErrInsufficientQuantity = domlisting.ErrInsufficientQuantity
	ErrPaymentFailed        = dompay.ErrPaymentFailed
	ErrRepository           = errors.New("purchase: repository failure")
)

type IDGenerator interface {
	NewID() string
}

// Service orchestrates the purchase saga: availability checks, pending
// purchase write, gateway charge, ledger decrement, and the compensating
// delete when the charge fails.
type Service struct {
	listings       domlisting.Repository
	purchases      domain.Repository
	ledger         domlisting.Ledger
	gateway        dompay.Gateway
	sagas          domsaga.Log
	publisher      domoutbox.Publisher
	idGenerator    IDGenerator
	paymentTimeout time.Duration
	tel            observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	extCounter   observability.Counter
	extHistogram observability.Histogram
	compCounter  observability.Counter
}

func NewService(
	listings domlisting.Repository,
	purchases domain.Repository,
	gateway dompay.Gateway,
	sagas domsaga.Log,
	publisher domoutbox.Publisher,
	idGen IDGenerator,
	paymentTimeout time.Duration,
	tel observability.Observability,
) *Service {
	baseLog := observability.NopLogger()
	metricsProvider := observability.NopMetrics()
	if tel != nil {
		baseLog = tel.Logger()
		metricsProvider = tel.Metrics()
	}
	if paymentTimeout <= 0 {
		paymentTimeout = defaultPaymentTimeout
	}
	return &Service{
		listings:       listings,
		purchases:      purchases,
		ledger:         domlisting.NewLedger(),
		gateway:        gateway,
		sagas:          sagas,
		publisher:      publisher,
		idGenerator:    idGen,
		paymentTimeout: paymentTimeout,
		tel:            tel,
		log:            baseLog.With(observability.F("service", purchaseService)),
		reqCounter:     metricsProvider.Counter(observability.MUsecaseRequests),
		durHistogram:   metricsProvider.Histogram(observability.MUsecaseDuration),
		extCounter:     metricsProvider.Counter(observability.MExternalRequests),
		extHistogram:   metricsProvider.Histogram(observability.MExternalRequestDuration),
		compCounter:    metricsProvider.Counter(observability.MSagaCompensations),
	}
}

type PurchaseInput struct {
	ItemID   string
	BuyerID  string
	Quantity int
}

// Purchase runs the purchase saga. All availability checks happen before any
// write or gateway call; a failed charge leaves no purchase row and the item's
// stock untouched.
func (s *Service) Purchase(ctx context.Context, cmd PurchaseInput) (_ *domain.Purchase, err error) {
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("use_case", useCasePurchase),
		observability.F("item_id", cmd.ItemID),
		observability.F("buyer_id", cmd.BuyerID),
	)
	ctx, span := s.tracer().Start(ctx, spanPrefix+"PurchaseItem",
		attribute.String("use_case", useCasePurchase),
		attribute.String("listing.id", cmd.ItemID),
		attribute.String("purchase.buyer_id", cmd.BuyerID),
		attribute.Int("purchase.quantity", cmd.Quantity),
	)
	done := s.instrument(ctx, span, logger, useCasePurchase)
	defer func() { done(err) }()

	if cmd.ItemID == "" || cmd.BuyerID == "" {
		return nil, fmt.Errorf("%w: item id and buyer id are required", domain.ErrMissingField)
	}
	if cmd.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	item, err := s.listings.Get(ctx, cmd.ItemID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	if !item.IsAvailable {
		return nil, ErrNotAvailable
	}
	if cmd.Quantity > item.Quantity {
		return nil, ErrInsufficientQuantity
	}

	// Price comes from the listing, never from the caller; the total is
	// recomputed inside the constructor.
	p, err := domain.New(s.idGenerator.NewID(), item.ID, cmd.BuyerID, cmd.Quantity, item.PricePerUnit)
	if err != nil {
		return nil, err
	}
	if err := s.purchases.Insert(ctx, p); err != nil {
		return nil, wrapRepositoryError(err)
	}

	sagaID := s.idGenerator.NewID()
	s.appendSaga(ctx, logger, domsaga.Entry{
		ID: sagaID, Kind: domsaga.KindPurchase, EntityID: p.ID,
		State: domsaga.StateIntent, Detail: "charge " + p.TotalAmount.String(), At: time.Now().UTC(),
	})

	result := s.payForPurchase(ctx, logger, p.ID, p.BuyerID)
	if !result.OK {
		if compErr := s.compensatePurchase(ctx, logger, p, sagaID, result.Message, ""); compErr != nil {
			return nil, compErr
		}
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, result.Message)
	}

	item, err = s.decrementWithRetry(ctx, logger, item, cmd.Quantity)
	if err != nil {
		// The charge went through but the stock is gone. Keep the gateway
		// reference on the compensated entry so the charge can be reconciled.
		if compErr := s.compensatePurchase(ctx, logger, p, sagaID, "stock lost after charge: "+err.Error(), result.Reference); compErr != nil {
			return nil, compErr
		}
		return nil, err
	}

	if err := p.MarkCompleted(result.Reference); err != nil {
		return nil, err
	}
	if err := s.purchases.Update(ctx, p); err != nil {
		return nil, wrapRepositoryError(err)
	}
	s.appendSaga(ctx, logger, domsaga.Entry{
		ID: sagaID, Kind: domsaga.KindPurchase, EntityID: p.ID,
		State: domsaga.StateResolved, Reference: result.Reference, At: time.Now().UTC(),
	})

	span.SetAttributes(
		attribute.String("purchase.id", p.ID),
		attribute.Int("listing.quantity_remaining", item.Quantity),
	)
	span.AddEvent("purchase.completed", trace.WithAttributes(attribute.String("purchase.id", p.ID)))

	s.publishEvent(ctx, logger, domain.NewCompletedEvent(p, item.OwnerID))
	return p, nil
}

func (s *Service) GetItem(ctx context.Context, id string) (*domlisting.Item, error) {
	if id == "" {
		return nil, fmt.Errorf("purchase: item id is required")
	}
	item, err := s.listings.Get(ctx, id)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return item, nil
}

// decrementWithRetry routes the stock change through the ledger and retries
// the optimistic write on version conflicts, re-reading and re-checking stock
// each round.
func (s *Service) decrementWithRetry(ctx context.Context, logger observability.Logger, item *domlisting.Item, quantity int) (*domlisting.Item, error) {
	for attempt := 0; attempt < maxDecrementRetries; attempt++ {
		if err := s.ledger.Decrement(item, quantity); err != nil {
			return nil, err
		}
		err := s.listings.Update(ctx, item)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, domlisting.ErrConflict) {
			return nil, wrapRepositoryError(err)
		}
		logger.Warn("listing_update_conflict",
			observability.F("item_id", item.ID),
			observability.F("attempt", attempt+1),
		)
		item, err = s.listings.Get(ctx, item.ID)
		if err != nil {
			return nil, wrapRepositoryError(err)
		}
	}
	return nil, domlisting.ErrConflict
}

func (s *Service) payForPurchase(ctx context.Context, logger observability.Logger, purchaseID, payerID string) (result dompay.Result) {
	payCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	start := time.Now()
	outcome := "success"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			result = dompay.Result{Message: fmt.Sprintf("gateway panic: %v", r)}
			logger.Error("payment_gateway_panic", observability.F("panic", r))
		}
		s.extCounter.Add(1,
			observability.L("peer", gatewayPeer),
			observability.L("endpoint", endpointPayForPurchase),
			observability.L("outcome", outcome),
		)
		s.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", gatewayPeer),
			observability.L("endpoint", endpointPayForPurchase),
		)
	}()

	result, err := s.gateway.PayForPurchase(payCtx, purchaseID, payerID)
	if err != nil {
		outcome = "error"
		msg := err.Error()
		if result.Message != "" {
			msg = result.Message
		}
		return dompay.Result{Message: msg}
	}
	if !result.OK {
		outcome = "declined"
	}
	return result
}

// compensatePurchase deletes the pending purchase row. The item's quantity is
// untouched at this point, so the delete alone restores the pre-saga state.
func (s *Service) compensatePurchase(ctx context.Context, logger observability.Logger, p *domain.Purchase, sagaID, reason, reference string) error {
	if err := s.purchases.Delete(ctx, p.ID); err != nil {
		logger.Error("purchase_rollback_failed",
			observability.F("purchase_id", p.ID),
			observability.F("error", err.Error()),
		)
		return wrapRepositoryError(err)
	}
	s.compCounter.Add(1, observability.L("saga", string(domsaga.KindPurchase)))
	s.appendSaga(ctx, logger, domsaga.Entry{
		ID: sagaID, Kind: domsaga.KindPurchase, EntityID: p.ID,
		State: domsaga.StateCompensated, Reference: reference, Detail: reason, At: time.Now().UTC(),
	})
	logger.Warn("purchase_compensated",
		observability.F("purchase_id", p.ID),
		observability.F("reason", reason),
	)
	return nil
}

func (s *Service) appendSaga(ctx context.Context, logger observability.Logger, e domsaga.Entry) {
	if s.sagas == nil {
		return
	}
	if err := s.sagas.Append(ctx, e); err != nil {
		logger.Error("saga_log_append_failed",
			observability.F("saga_id", e.ID),
			observability.F("state", string(e.State)),
			observability.F("error", err.Error()),
		)
	}
}

func (s *Service) publishEvent(ctx context.Context, logger observability.Logger, e domoutbox.Event) {
	if s.publisher == nil || e == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event_publish_panic",
				observability.F("event", e.EventName()),
				observability.F("panic", r),
			)
		}
	}()
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, e); err != nil {
		logger.Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
}

func (s *Service) tracer() observability.Tracer {
	if s.tel != nil {
		return s.tel.Tracer()
	}
	return observability.NopTracer()
}

func (s *Service) instrument(ctx context.Context, span trace.Span, logger observability.Logger, useCase string) func(error) {
	start := time.Now()
	return func(err error) {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		lat := time.Since(start).Seconds()

		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "OK")
			}
			span.End()
		}

		s.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(lat, observability.L("use_case", useCase))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("latency_seconds", lat),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domlisting.ErrNotFound), errors.Is(err, domain.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, domlisting.ErrConflict):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
