// Package service hosts the order enrichment engine: the single writer of
// repository state. It validates incoming signed orders, enriches them with
// settlement-reported remaining amounts, and keeps the book reconciled with
// asynchronous fill/cancel notifications and a periodic prune sweep.
package service

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/events"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/hash"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/model"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/settlement"
	"github.com/krishishah/0xygen-Relay-sub000/pkg/errors"
	"github.com/krishishah/0xygen-Relay-sub000/pkg/metrics"
)

// OrderService coordinates repository, settlement client and event bus. All
// mutations for a single order hash are serialized through a keyed lock;
// different hashes proceed in parallel.
type OrderService struct {
	repo          model.Repository
	settlement    settlement.Client
	bus           *events.Bus
	logger        *zap.Logger
	locks         hashLocks
	pruneInterval time.Duration
}

// NewOrderService wires the enrichment engine. The settlement client is an
// explicit dependency, never a shared global, so tests can substitute one.
func NewOrderService(repo model.Repository, sc settlement.Client, bus *events.Bus, pruneInterval time.Duration, logger *zap.Logger) *OrderService {
	s := &OrderService{
		repo:          repo,
		settlement:    sc,
		bus:           bus,
		logger:        logger,
		pruneInterval: pruneInterval,
	}
	sc.SubscribeToUpdates(func(order *model.SignedOrder, status *settlement.Status) {
		if err := s.Reconcile(context.Background(), order, status); err != nil {
			logger.Error("reconciliation failed", zap.Error(err))
		}
	})
	return s
}

// PostOrder validates, enriches and persists a submitted signed order.
//
// The enriched remaining amounts come from the settlement authority, not the
// order's face amounts: an order may already be partially consumed elsewhere
// before it reaches this relayer.
func (s *OrderService) PostOrder(ctx context.Context, so *model.SignedOrder) (*model.EnrichedOrder, error) {
	if err := hash.ValidateAmounts(&so.Order); err != nil {
		metrics.OrdersRejected.WithLabelValues("malformed").Inc()
		return nil, err
	}
	h, err := hash.VerifySignature(so)
	if err != nil {
		metrics.OrdersRejected.WithLabelValues("signature").Inc()
		return nil, err
	}

	unlock := s.locks.lock(h)
	defer unlock()

	status, err := s.settlement.GetRemainingFillable(ctx, so)
	if err != nil {
		metrics.OrdersRejected.WithLabelValues("settlement_unavailable").Inc()
		return nil, err
	}
	if !status.IsValid {
		metrics.OrdersRejected.WithLabelValues("unfillable").Inc()
		return nil, errors.NewInvalidOrder(h, "settlement authority reports order unfillable")
	}
	if status.RemainingMakerTokenAmount.Sign() <= 0 || status.RemainingTakerTokenAmount.Sign() <= 0 {
		metrics.OrdersRejected.WithLabelValues("unfillable").Inc()
		return nil, errors.NewInvalidOrder(h, "no remaining fillable amount")
	}

	enriched := &model.EnrichedOrder{
		SignedOrder:               *so,
		Hash:                      h,
		RemainingMakerTokenAmount: clamp(status.RemainingMakerTokenAmount, so.MakerTokenAmount),
		RemainingTakerTokenAmount: clamp(status.RemainingTakerTokenAmount, so.TakerTokenAmount),
	}
	if err := s.repo.Save(ctx, enriched); err != nil {
		return nil, err
	}

	// The order must not outlive a failed registration with the settlement
	// watcher: without it the book would drift silently, so compensate by
	// deleting the just-written record.
	if err := s.settlement.Track(ctx, so); err != nil {
		if delErr := s.repo.Delete(ctx, h); delErr != nil {
			s.logger.Error("compensating delete failed",
				zap.Error(delErr), zap.String("order_hash", h.Hex()))
		}
		metrics.OrdersRejected.WithLabelValues("watch_failed").Inc()
		return nil, err
	}

	metrics.OrdersAccepted.Inc()
	s.publish(ctx, events.OrderAdded, enriched)
	s.logger.Info("order added",
		zap.String("order_hash", h.Hex()),
		zap.String("maker_token", so.MakerTokenAddress.Hex()),
		zap.String("taker_token", so.TakerTokenAddress.Hex()))
	return enriched, nil
}

// Reconcile applies a settlement update to a tracked order. The hash is
// recomputed from the embedded order data; a caller-supplied hash is never
// trusted. Updates for unknown orders are idempotent no-ops, which absorbs
// duplicate and late deliveries.
func (s *OrderService) Reconcile(ctx context.Context, order *model.SignedOrder, status *settlement.Status) error {
	_, err := s.reconcile(ctx, order, status)
	return err
}

// reconcile reports active=true only when the order is still in the book
// afterwards; unknown and removed orders both come back inactive.
func (s *OrderService) reconcile(ctx context.Context, order *model.SignedOrder, status *settlement.Status) (active bool, err error) {
	h, err := hash.OrderHash(&order.Order)
	if err != nil {
		return false, err
	}

	unlock := s.locks.lock(h)
	defer unlock()

	existing, err := s.repo.Get(ctx, h)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	exhausted := status.RemainingMakerTokenAmount.Sign() <= 0 || status.RemainingTakerTokenAmount.Sign() <= 0
	if !status.IsValid || exhausted {
		if err := s.repo.Delete(ctx, h); err != nil {
			return false, err
		}
		s.settlement.Untrack(h)
		metrics.OrdersRemoved.WithLabelValues("reconciled").Inc()
		s.publish(ctx, events.OrderRemoved, existing)
		s.logger.Info("order removed", zap.String("order_hash", h.Hex()))
		return false, nil
	}

	existing.RemainingMakerTokenAmount = clamp(status.RemainingMakerTokenAmount, existing.MakerTokenAmount)
	existing.RemainingTakerTokenAmount = clamp(status.RemainingTakerTokenAmount, existing.TakerTokenAmount)
	if err := s.repo.Save(ctx, existing); err != nil {
		return false, err
	}
	metrics.OrdersUpdated.Inc()
	s.publish(ctx, events.OrderUpdated, existing)
	return true, nil
}

// PruneStale re-queries settlement state for every persisted order and
// applies the reconcile logic. This repairs drift from missed push
// notifications. One order's failure never aborts the sweep.
func (s *OrderService) PruneStale(ctx context.Context) error {
	orders, err := s.repo.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		status, err := s.settlement.GetRemainingFillable(ctx, &o.SignedOrder)
		if err != nil {
			s.logger.Warn("prune skipped order",
				zap.Error(err), zap.String("order_hash", o.Hash.Hex()))
			continue
		}
		active, err := s.reconcile(ctx, &o.SignedOrder, status)
		if err != nil {
			s.logger.Warn("prune failed for order",
				zap.Error(err), zap.String("order_hash", o.Hash.Hex()))
			continue
		}
		if active {
			// Repair the watcher's tracked set after restarts. Orders the
			// reconcile just removed must not re-enter it.
			if err := s.settlement.Track(ctx, &o.SignedOrder); err != nil {
				s.logger.Warn("prune could not re-track order",
					zap.Error(err), zap.String("order_hash", o.Hash.Hex()))
			}
		}
	}
	return nil
}

// Run prunes once at startup and then on a fixed interval until ctx is
// cancelled. In-flight order checks finish; remaining ones are skipped.
func (s *OrderService) Run(ctx context.Context) {
	if err := s.PruneStale(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("initial prune failed", zap.Error(err))
	}
	ticker := time.NewTicker(s.pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("prune loop stopped")
			return
		case <-ticker.C:
			if err := s.PruneStale(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("prune sweep failed", zap.Error(err))
			}
		}
	}
}

// GetOrder returns the enriched order stored under hash.
func (s *OrderService) GetOrder(ctx context.Context, h common.Hash) (*model.EnrichedOrder, error) {
	return s.repo.Get(ctx, h)
}

// ListOrders returns every active order.
func (s *OrderService) ListOrders(ctx context.Context) ([]*model.EnrichedOrder, error) {
	return s.repo.ListAll(ctx)
}

// TokenPairs returns the distinct directional token pairs with live orders.
func (s *OrderService) TokenPairs(ctx context.Context) ([]model.TokenPair, error) {
	orders, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[model.TokenPair]struct{})
	pairs := make([]model.TokenPair, 0)
	for _, o := range orders {
		p := model.TokenPair{MakerTokenAddress: o.MakerTokenAddress, TakerTokenAddress: o.TakerTokenAddress}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

func (s *OrderService) publish(ctx context.Context, eventType string, order *model.EnrichedOrder) {
	s.bus.Publish(ctx, events.TopicOrders, events.OrderEvent{
		Type:              eventType,
		Order:             order,
		MakerTokenAddress: order.MakerTokenAddress,
		TakerTokenAddress: order.TakerTokenAddress,
	})
}

// clamp keeps a reported remaining amount inside [0, original].
func clamp(v, original decimal.Decimal) decimal.Decimal {
	if v.Sign() < 0 {
		return decimal.Zero
	}
	if v.GreaterThan(original) {
		return original
	}
	return v
}
