package pickup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domlisting "github.com/greenloop/recyclemart/internal/domain/listing"
	domoutbox "github.com/greenloop/recyclemart/internal/domain/outbox"
	dompay "github.com/greenloop/recyclemart/internal/domain/payment"
	domain "github.com/greenloop/recyclemart/internal/domain/pickup"
	domsaga "github.com/greenloop/recyclemart/internal/domain/saga"
	"github.com/greenloop/recyclemart/internal/observability"
	"github.com/greenloop/recyclemart/internal/observability/logctx"
)

const (
	pickupService         = "pickup-service"
	useCasePickupSubmit   = "pickup.submit"
	useCasePickupApprove  = "pickup.approve"
	useCasePickupReject   = "pickup.reject"
	spanPrefix            = "UC."
	gatewayPeer           = "payment_gateway"
	endpointPayForPickup  = "pay_for_pickup"
	defaultPaymentTimeout = 5 * time.Second
	publishTimeout        = 300 * time.Millisecond
)

var (
	ErrNotFound      = domain.ErrNotFound
	ErrInvalidState  = domain.ErrInvalidState
	ErrPaymentFailed = dompay.ErrPaymentFailed
	ErrRepository    = errors.New("pickup: repository failure")
)

// Service orchestrates the pickup request lifecycle: submission, rejection,
// and the approval saga (approve -> charge -> publish, with compensation back
// to pending when the charge fails).
type Service struct {
	requests       domain.Repository
	listings       domlisting.Repository
	gateway        dompay.Gateway
	sagas          domsaga.Log
	publisher      domoutbox.Publisher
	idGenerator    IDGenerator
	paymentTimeout time.Duration
	tel            observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
	compCounter  observability.Counter   // saga_compensations_total{saga}
}

func NewService(
	requests domain.Repository,
	listings domlisting.Repository,
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
		requests:       requests,
		listings:       listings,
		gateway:        gateway,
		sagas:          sagas,
		publisher:      publisher,
		idGenerator:    idGen,
		paymentTimeout: paymentTimeout,
		tel:            tel,
		log:            baseLog.With(observability.F("service", pickupService)),
		reqCounter:     metricsProvider.Counter(observability.MUsecaseRequests),
		durHistogram:   metricsProvider.Histogram(observability.MUsecaseDuration),
		extCounter:     metricsProvider.Counter(observability.MExternalRequests),
		extHistogram:   metricsProvider.Histogram(observability.MExternalRequestDuration),
		compCounter:    metricsProvider.Counter(observability.MSagaCompensations),
	}
}

type SubmitInput struct {
	RequesterID  string
	MaterialType string
	Quantity     int
	Unit         string
	PricePerUnit decimal.Decimal
	Description  string
	Images       []string
}

// Submit creates a pending pickup request.
func (s *Service) Submit(ctx context.Context, cmd SubmitInput) (_ *domain.Request, err error) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCasePickupSubmit))
	ctx, span := s.tracer().Start(ctx, spanPrefix+"SubmitPickup",
		attribute.String("use_case", useCasePickupSubmit),
		attribute.String("pickup.requester_id", cmd.RequesterID),
		attribute.String("pickup.material_type", cmd.MaterialType),
	)
	done := s.instrument(ctx, span, logger, useCasePickupSubmit)
	defer func() { done(err) }()

	request, derr := domain.New(s.idGenerator.NewID(), cmd.RequesterID, cmd.MaterialType,
		cmd.Unit, cmd.Quantity, cmd.PricePerUnit, cmd.Description, cmd.Images)
	if derr != nil {
		return nil, derr
	}
	if err := s.requests.Insert(ctx, request); err != nil {
		return nil, wrapRepositoryError(err)
	}
	span.AddEvent("pickup.submitted", trace.WithAttributes(attribute.String("pickup.id", request.ID)))
	return request, nil
}

type ApproveInput struct {
	RequestID string
	AdminID   string
	Notes     string
}

// Approve runs the approval saga. Writes are sequenced around the gateway
// call: approve write, charge, then either the publish write or the
// compensating revert write. The request never stays approved after a failed
// charge.
func (s *Service) Approve(ctx context.Context, cmd ApproveInput) (_ *domain.Request, err error) {
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("use_case", useCasePickupApprove),
		observability.F("request_id", cmd.RequestID),
	)
	ctx, span := s.tracer().Start(ctx, spanPrefix+"ApprovePickup",
		attribute.String("use_case", useCasePickupApprove),
		attribute.String("pickup.id", cmd.RequestID),
		attribute.String("pickup.admin_id", cmd.AdminID),
	)
	done := s.instrument(ctx, span, logger, useCasePickupApprove)
	defer func() { done(err) }()

	if cmd.RequestID == "" || cmd.AdminID == "" {
		return nil, fmt.Errorf("%w: request id and admin id are required", domain.ErrMissingField)
	}

	request, err := s.requests.Get(ctx, cmd.RequestID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	if err := request.Approve(cmd.AdminID, cmd.Notes); err != nil {
		return nil, err
	}
	// First write: the approved transition, guarded by the pending status so a
	// concurrent approval cannot interleave with this saga's rollback.
	if err := s.requests.Update(ctx, request, domain.StatusPending); err != nil {
		return nil, wrapRepositoryError(err)
	}

	sagaID := s.idGenerator.NewID()
	amount := request.Total()
	s.appendSaga(ctx, logger, domsaga.Entry{
		ID: sagaID, Kind: domsaga.KindApproval, EntityID: request.ID,
		State: domsaga.StateIntent, Detail: "charge " + amount.String(), At: time.Now().UTC(),
	})

	result := s.payForPickup(ctx, logger, request.ID, amount)
	if !result.OK {
		if compErr := s.compensateApproval(ctx, logger, request, sagaID, result.Message); compErr != nil {
			return nil, compErr
		}
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, result.Message)
	}

	item, err := domlisting.NewFromRequest(s.idGenerator.NewID(), request)
	if err == nil {
		err = s.listings.Insert(ctx, item)
	}
	if err != nil {
		// No marketplace item may outlive a failed publish; roll the request
		// back so the charge can be reconciled against the saga log.
		if compErr := s.compensateApproval(ctx, logger, request, sagaID, "listing creation failed: "+err.Error()); compErr != nil {
			return nil, compErr
		}
		return nil, fmt.Errorf("pickup: publish listing: %w", err)
	}

	published := request.Clone()
	if err := published.Publish(); err != nil {
		return nil, err
	}
	// Confirming write: approved -> published. A failure here also rolls the
	// saga back; the listing must not outlive the write that publishes it.
	if err := s.requests.Update(ctx, published, domain.StatusApproved); err != nil {
		if delErr := s.listings.Delete(ctx, item.ID); delErr != nil && !errors.Is(delErr, domlisting.ErrNotFound) {
			logger.Error("listing_rollback_failed",
				observability.F("item_id", item.ID),
				observability.F("error", delErr.Error()),
			)
		}
		if compErr := s.compensateApproval(ctx, logger, request, sagaID, "publish write failed: "+err.Error()); compErr != nil {
			return nil, compErr
		}
		return nil, wrapRepositoryError(err)
	}
	request = published
	s.appendSaga(ctx, logger, domsaga.Entry{
		ID: sagaID, Kind: domsaga.KindApproval, EntityID: request.ID,
		State: domsaga.StateResolved, Reference: result.Reference, At: time.Now().UTC(),
	})

	span.SetAttributes(attribute.String("pickup.status", string(request.Status)))
	span.AddEvent("pickup.published", trace.WithAttributes(attribute.String("listing.id", item.ID)))

	s.publishEvent(ctx, logger, domain.NewRequestApprovedEvent(request, result.Reference))
	s.publishEvent(ctx, logger, domain.NewRequestPublishedEvent(request, item.ID))

	return request, nil
}

type RejectInput struct {
	RequestID string
	AdminID   string
	Notes     string
}

// Reject is a single write with no external calls, so no compensation applies.
func (s *Service) Reject(ctx context.Context, cmd RejectInput) (_ *domain.Request, err error) {
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("use_case", useCasePickupReject),
		observability.F("request_id", cmd.RequestID),
	)
	ctx, span := s.tracer().Start(ctx, spanPrefix+"RejectPickup",
		attribute.String("use_case", useCasePickupReject),
		attribute.String("pickup.id", cmd.RequestID),
	)
	done := s.instrument(ctx, span, logger, useCasePickupReject)
	defer func() { done(err) }()

	if cmd.RequestID == "" || cmd.AdminID == "" {
		return nil, fmt.Errorf("%w: request id and admin id are required", domain.ErrMissingField)
	}

	request, err := s.requests.Get(ctx, cmd.RequestID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	if err := request.Reject(cmd.AdminID, cmd.Notes); err != nil {
		return nil, err
	}
	if err := s.requests.Update(ctx, request, domain.StatusPending); err != nil {
		return nil, wrapRepositoryError(err)
	}

	s.publishEvent(ctx, logger, domain.NewRequestRejectedEvent(request))
	return request, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Request, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", domain.ErrMissingField)
	}
	request, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return request, nil
}

// payForPickup calls the gateway under a timeout. Gateway errors, panics, and
// timeouts all come back as a declined result so compensation always runs.
func (s *Service) payForPickup(ctx context.Context, logger observability.Logger, requestID string, amount decimal.Decimal) (result dompay.Result) {
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
			observability.L("endpoint", endpointPayForPickup),
			observability.L("outcome", outcome),
		)
		s.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", gatewayPeer),
			observability.L("endpoint", endpointPayForPickup),
		)
	}()

	result, err := s.gateway.PayForPickup(payCtx, requestID, amount)
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

// compensateApproval reverts the approved write so the request is back where
// the saga found it: pending, with all admin fields cleared.
func (s *Service) compensateApproval(ctx context.Context, logger observability.Logger, request *domain.Request, sagaID, reason string) error {
	if err := request.RevertApproval(); err != nil {
		return err
	}
	if err := s.requests.Update(ctx, request, domain.StatusApproved); err != nil {
		logger.Error("approval_rollback_failed",
			observability.F("request_id", request.ID),
			observability.F("error", err.Error()),
		)
		return wrapRepositoryError(err)
	}
	s.compCounter.Add(1, observability.L("saga", string(domsaga.KindApproval)))
	s.appendSaga(ctx, logger, domsaga.Entry{
		ID: sagaID, Kind: domsaga.KindApproval, EntityID: request.ID,
		State: domsaga.StateCompensated, Detail: reason, At: time.Now().UTC(),
	})
	logger.Warn("approval_compensated",
		observability.F("request_id", request.ID),
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

// publishEvent hands a committed outcome to the bus. Failures are logged and
// swallowed; notifications never change a saga's reported result.
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

// instrument opens the RED bookkeeping for a use case and returns the closer
// invoked with the use case's final error.
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
	case errors.Is(err, domain.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, domain.ErrConflict):
		return domain.ErrConflict
	case errors.Is(err, domlisting.ErrAlreadyPublished):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
