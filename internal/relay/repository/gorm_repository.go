// Package repository persists enriched orders with GORM, keyed by order hash
// and indexed by directional token pair. An optional Redis read cache sits in
// front of single-hash lookups; writes go through the cache so a read never
// observes a value older than the last completed write for that hash.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/model"
	"github.com/krishishah/0xygen-Relay-sub000/pkg/errors"
)

const cacheTTL = 5 * time.Minute

// Order is the database row for an enriched signed order. Addresses are
// lower-case hex; amounts are decimal strings so no precision is lost in the
// column round-trip.
type Order struct {
	Hash                       string `gorm:"primaryKey;size:66"`
	Maker                      string `gorm:"size:42;index"`
	Taker                      string `gorm:"size:42"`
	MakerTokenAddress          string `gorm:"size:42;index:idx_orders_token_pair,priority:1"`
	TakerTokenAddress          string `gorm:"size:42;index:idx_orders_token_pair,priority:2"`
	FeeRecipient               string `gorm:"size:42"`
	ExchangeContractAddress    string `gorm:"size:42"`
	MakerTokenAmount           string
	TakerTokenAmount           string
	MakerFee                   string
	TakerFee                   string
	Salt                       string
	ExpirationUnixTimestampSec int64
	SignatureV                 uint8
	SignatureR                 string `gorm:"size:66"`
	SignatureS                 string `gorm:"size:66"`
	RemainingMakerTokenAmount  string
	RemainingTakerTokenAmount  string
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// TableName sets the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// GormRepository implements model.Repository using GORM
type GormRepository struct {
	db     *gorm.DB
	cache  *redis.Client // nil disables caching
	logger *zap.Logger
}

// NewGormRepository creates a GORM-backed repository. cache may be nil.
func NewGormRepository(db *gorm.DB, cache *redis.Client, logger *zap.Logger) (*GormRepository, error) {
	if err := db.AutoMigrate(&Order{}); err != nil {
		return nil, fmt.Errorf("failed to migrate orders table: %w", err)
	}
	return &GormRepository{db: db, cache: cache, logger: logger}, nil
}

// Save upserts the order under its hash.
func (r *GormRepository) Save(ctx context.Context, order *model.EnrichedOrder) error {
	row := toRow(order)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hash"}},
		UpdateAll: true,
	}).Create(row).Error; err != nil {
		return fmt.Errorf("failed to save order %s: %w", order.Hash.Hex(), err)
	}
	r.cacheSet(ctx, row)
	r.logger.Debug("order saved", zap.String("order_hash", order.Hash.Hex()))
	return nil
}

// Get returns the order stored under hash.
func (r *GormRepository) Get(ctx context.Context, hash common.Hash) (*model.EnrichedOrder, error) {
	if row, ok := r.cacheGet(ctx, hash); ok {
		return fromRow(row)
	}
	var row Order
	if err := r.db.WithContext(ctx).Where("hash = ?", hashKey(hash)).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order %s: %w", hash.Hex(), err)
	}
	r.cacheSet(ctx, &row)
	return fromRow(&row)
}

// QueryByTokenPair returns all orders selling makerToken for takerToken.
func (r *GormRepository) QueryByTokenPair(ctx context.Context, makerToken, takerToken common.Address) ([]*model.EnrichedOrder, error) {
	var rows []Order
	if err := r.db.WithContext(ctx).
		Where("maker_token_address = ? AND taker_token_address = ?", addressKey(makerToken), addressKey(takerToken)).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query orders by token pair: %w", err)
	}
	return fromRows(rows)
}

// Delete removes the order under hash. Idempotent.
func (r *GormRepository) Delete(ctx context.Context, hash common.Hash) error {
	if err := r.db.WithContext(ctx).Where("hash = ?", hashKey(hash)).Delete(&Order{}).Error; err != nil {
		return fmt.Errorf("failed to delete order %s: %w", hash.Hex(), err)
	}
	r.cacheDel(ctx, hash)
	return nil
}

// ListAll returns every persisted order.
func (r *GormRepository) ListAll(ctx context.Context) ([]*model.EnrichedOrder, error) {
	var rows []Order
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return fromRows(rows)
}

func (r *GormRepository) cacheSet(ctx context.Context, row *Order) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(row)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(row.Hash), data, cacheTTL).Err(); err != nil {
		r.logger.Warn("order cache set failed", zap.Error(err), zap.String("order_hash", row.Hash))
	}
}

func (r *GormRepository) cacheGet(ctx context.Context, hash common.Hash) (*Order, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, err := r.cache.Get(ctx, cacheKey(hashKey(hash))).Bytes()
	if err != nil {
		return nil, false
	}
	var row Order
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, false
	}
	return &row, true
}

func (r *GormRepository) cacheDel(ctx context.Context, hash common.Hash) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, cacheKey(hashKey(hash))).Err(); err != nil {
		r.logger.Warn("order cache delete failed", zap.Error(err), zap.String("order_hash", hash.Hex()))
	}
}

func cacheKey(hash string) string { return "order:" + hash }

func hashKey(hash common.Hash) string { return hash.Hex() }

func addressKey(addr common.Address) string { return addr.Hex() }

func toRow(o *model.EnrichedOrder) *Order {
	return &Order{
		Hash:                       hashKey(o.Hash),
		Maker:                      addressKey(o.Maker),
		Taker:                      addressKey(o.Taker),
		MakerTokenAddress:          addressKey(o.MakerTokenAddress),
		TakerTokenAddress:          addressKey(o.TakerTokenAddress),
		FeeRecipient:               addressKey(o.FeeRecipient),
		ExchangeContractAddress:    addressKey(o.ExchangeContractAddress),
		MakerTokenAmount:           o.MakerTokenAmount.String(),
		TakerTokenAmount:           o.TakerTokenAmount.String(),
		MakerFee:                   o.MakerFee.String(),
		TakerFee:                   o.TakerFee.String(),
		Salt:                       o.Salt.String(),
		ExpirationUnixTimestampSec: o.ExpirationUnixTimestampSec,
		SignatureV:                 o.Signature.V,
		SignatureR:                 o.Signature.R.Hex(),
		SignatureS:                 o.Signature.S.Hex(),
		RemainingMakerTokenAmount:  o.RemainingMakerTokenAmount.String(),
		RemainingTakerTokenAmount:  o.RemainingTakerTokenAmount.String(),
	}
}

// fromRow converts a database row back into the domain model. A row with an
// unparsable amount is a corruption bug, not a value to default: the error is
// propagated to the caller.
func fromRow(row *Order) (*model.EnrichedOrder, error) {
	o := &model.EnrichedOrder{
		SignedOrder: model.SignedOrder{
			Order: model.Order{
				Maker:                      common.HexToAddress(row.Maker),
				Taker:                      common.HexToAddress(row.Taker),
				MakerTokenAddress:          common.HexToAddress(row.MakerTokenAddress),
				TakerTokenAddress:          common.HexToAddress(row.TakerTokenAddress),
				FeeRecipient:               common.HexToAddress(row.FeeRecipient),
				ExchangeContractAddress:    common.HexToAddress(row.ExchangeContractAddress),
				ExpirationUnixTimestampSec: row.ExpirationUnixTimestampSec,
			},
			Signature: model.ECSignature{
				V: row.SignatureV,
				R: common.HexToHash(row.SignatureR),
				S: common.HexToHash(row.SignatureS),
			},
		},
		Hash: common.HexToHash(row.Hash),
	}
	fields := []struct {
		name string
		dst  *decimal.Decimal
		src  string
	}{
		{"maker_token_amount", &o.MakerTokenAmount, row.MakerTokenAmount},
		{"taker_token_amount", &o.TakerTokenAmount, row.TakerTokenAmount},
		{"maker_fee", &o.MakerFee, row.MakerFee},
		{"taker_fee", &o.TakerFee, row.TakerFee},
		{"salt", &o.Salt, row.Salt},
		{"remaining_maker_token_amount", &o.RemainingMakerTokenAmount, row.RemainingMakerTokenAmount},
		{"remaining_taker_token_amount", &o.RemainingTakerTokenAmount, row.RemainingTakerTokenAmount},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("corrupt column %s for order %s: %w", f.name, row.Hash, err)
		}
		*f.dst = d
	}
	return o, nil
}

func fromRows(rows []Order) ([]*model.EnrichedOrder, error) {
	orders := make([]*model.EnrichedOrder, 0, len(rows))
	for i := range rows {
		o, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}
