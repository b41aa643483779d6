package paymentsim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dompay "github.com/greenloop/recyclemart/internal/domain/payment"
)

const defaultSuccessRate = 0.7

// Gateway simulates the external payment provider. Outcomes follow a
// configurable success rate; declines carry a message the orchestrators
// surface to callers.
type Gateway struct {
	mu          sync.Mutex
	random      *rand.Rand
	successRate float64
}

func New() *Gateway {
	return &Gateway{
		random:      rand.New(rand.NewSource(time.Now().UnixNano())),
		successRate: defaultSuccessRate,
	}
}

func (g *Gateway) PayForPickup(ctx context.Context, requestID string, amount decimal.Decimal) (dompay.Result, error) {
	_ = requestID
	_ = amount
	return g.charge(ctx)
}

func (g *Gateway) PayForPurchase(ctx context.Context, purchaseID, payerID string) (dompay.Result, error) {
	_ = purchaseID
	_ = payerID
	return g.charge(ctx)
}

func (g *Gateway) charge(ctx context.Context) (dompay.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// respect cancellation even though this is mocked
	select {
	case <-ctx.Done():
		return dompay.Result{Message: "gateway timeout"}, ctx.Err()
	default:
	}

	if g.random.Float64() <= g.successRate {
		return dompay.Result{OK: true, Reference: uuid.NewString()}, nil
	}
	return dompay.Result{Message: "payment declined"}, nil
}

// SetSuccessRate adjusts the simulated outcome rate (primarily for tests).
func (g *Gateway) SetSuccessRate(rate float64) {
	g.mu.Lock()
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	g.successRate = rate
	g.mu.Unlock()
}
