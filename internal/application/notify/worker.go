package notify

import (
	"context"
	"fmt"
	"time"

	domnotif "github.com/greenloop/recyclemart/internal/domain/notification"
	domoutbox "github.com/greenloop/recyclemart/internal/domain/outbox"
	dompickup "github.com/greenloop/recyclemart/internal/domain/pickup"
	dompurchase "github.com/greenloop/recyclemart/internal/domain/purchase"
	"github.com/greenloop/recyclemart/internal/observability"
	"github.com/greenloop/recyclemart/internal/observability/logctx"
)

const workerService = "notify_worker"

// Worker turns committed saga events into user notifications. Every failure is
// absorbed here: a missed notification never surfaces to the saga's caller.
type Worker struct {
	subscriber domoutbox.Subscriber
	dispatcher domnotif.Dispatcher
	tel        observability.Observability

	log        observability.Logger
	reqCounter observability.Counter
	durHist    observability.Histogram
}

func New(subscriber domoutbox.Subscriber, dispatcher domnotif.Dispatcher, tel observability.Observability) *Worker {
	baseLog := observability.NopLogger()
	metricsProvider := observability.NopMetrics()
	if tel != nil {
		baseLog = tel.Logger()
		metricsProvider = tel.Metrics()
	}
	return &Worker{
		subscriber: subscriber,
		dispatcher: dispatcher,
		tel:        tel,
		log:        baseLog.With(observability.F("service", workerService)),
		reqCounter: metricsProvider.Counter(observability.MUsecaseRequests),
		durHist:    metricsProvider.Histogram(observability.MUsecaseDuration),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.dispatcher == nil {
		return
	}
	w.subscriber.Subscribe(dompickup.RequestApprovedEvent{}.EventName(), w.handleApproved)
	w.subscriber.Subscribe(dompickup.RequestPublishedEvent{}.EventName(), w.handlePublished)
	w.subscriber.Subscribe(dompickup.RequestRejectedEvent{}.EventName(), w.handleRejected)
	w.subscriber.Subscribe(dompurchase.CompletedEvent{}.EventName(), w.handlePurchaseCompleted)
}

func (w *Worker) handleApproved(ctx context.Context, e domoutbox.Event) error {
	const useCase = "notify.pickup_approved"
	evt, ok := e.(dompickup.RequestApprovedEvent)
	if !ok {
		w.count(useCase, "ignored", 0)
		return nil
	}
	w.notify(ctx, useCase, evt.RequesterID,
		"Payment received",
		fmt.Sprintf("Your pickup request %s was approved and %s was paid out.", evt.RequestID, evt.Amount),
		domnotif.TypePaymentReceived,
	)
	return nil
}

func (w *Worker) handlePublished(ctx context.Context, e domoutbox.Event) error {
	const useCase = "notify.pickup_published"
	evt, ok := e.(dompickup.RequestPublishedEvent)
	if !ok {
		w.count(useCase, "ignored", 0)
		return nil
	}
	w.notify(ctx, useCase, evt.RequesterID,
		"Listing is live",
		fmt.Sprintf("Your %s is now listed on the marketplace.", evt.MaterialType),
		domnotif.TypeListingPublished,
	)
	return nil
}

func (w *Worker) handleRejected(ctx context.Context, e domoutbox.Event) error {
	const useCase = "notify.pickup_rejected"
	evt, ok := e.(dompickup.RequestRejectedEvent)
	if !ok {
		w.count(useCase, "ignored", 0)
		return nil
	}
	msg := "Your pickup request was rejected."
	if evt.Notes != "" {
		msg = fmt.Sprintf("Your pickup request was rejected: %s", evt.Notes)
	}
	w.notify(ctx, useCase, evt.RequesterID, "Request rejected", msg, domnotif.TypeRequestRejected)
	return nil
}

func (w *Worker) handlePurchaseCompleted(ctx context.Context, e domoutbox.Event) error {
	const useCase = "notify.purchase_completed"
	evt, ok := e.(dompurchase.CompletedEvent)
	if !ok {
		w.count(useCase, "ignored", 0)
		return nil
	}
	w.notify(ctx, useCase, evt.BuyerID,
		"Purchase confirmed",
		fmt.Sprintf("Purchase %s for %s completed.", evt.PurchaseID, evt.TotalAmount),
		domnotif.TypePurchaseCompleted,
	)
	if evt.SellerID != "" {
		w.notify(ctx, useCase, evt.SellerID,
			"Material sold",
			fmt.Sprintf("%d units of your listing were purchased.", evt.Quantity),
			domnotif.TypeItemSold,
		)
	}
	return nil
}

// notify dispatches one message and absorbs panics and errors.
func (w *Worker) notify(ctx context.Context, useCase, recipientID, title, message string, kind domnotif.Type) {
	start := time.Now()
	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCase),
		observability.F("recipient_id", recipientID),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notify_panic", observability.F("panic", r))
			w.count(useCase, "panic", time.Since(start).Seconds())
		}
	}()

	if err := w.dispatcher.Notify(ctx, recipientID, title, message, kind); err != nil {
		logger.Warn("notify_failed", observability.F("error", err.Error()))
		w.count(useCase, "error", time.Since(start).Seconds())
		return
	}
	w.count(useCase, "success", time.Since(start).Seconds())
}

func (w *Worker) count(useCase, outcome string, latency float64) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
	if latency > 0 {
		w.durHist.Observe(latency, observability.L("use_case", useCase))
	}
}
