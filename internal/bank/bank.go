// internal/bank/bank.go

// Package bank 定義核心商業邏輯：帳戶間轉帳、餘額與轉帳紀錄查詢。
// 轉帳的扣款、入帳與紀錄追加在同一個儲存交易內完成；
// 涉及的兩個帳戶依帳戶 ID 由小到大上鎖，避免反向轉帳互相等待。
// 金額以 decimal 表示，最多兩位小數。
package bank

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carol-yiyun/transfer-ledger/internal/logger"
)

const (
	maxDetailLen         = 255
	maxIdempotencyKeyLen = 128
)

// Engine 為帳本的唯一寫入入口。
// - store：注入的儲存（記憶體或 SQL），Engine 不持有任何全域連線。
// - cache：選用；提交成功後失效雙方帳戶的快取。
type Engine struct {
	store  Store
	cache  BalanceCache
	log    *logger.Logger
	now    func() time.Time
	tracer trace.Tracer
}

type Option func(*Engine)

// WithCache 讓 Engine 在每次提交後使快取失效。
func WithCache(c BalanceCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithClock 替換轉帳紀錄的時間來源。
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine 建立 Engine；log 可為 nil。
func NewEngine(store Store, log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	e := &Engine{
		store:  store,
		log:    log.With("component", "LedgerEngine"),
		now:    time.Now,
		tracer: otel.Tracer("github.com/carol-yiyun/transfer-ledger/internal/bank"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transfer 將 req.Amount 由 emitter 轉給 receiver，成功時回傳新建立的轉帳紀錄。
// 檢核順序：key 非空 → 非自轉 → 金額 > 0 → emitter 存在 → receiver 存在 → 餘額足夠。
// 任一步驟失敗皆不會改變任何帳戶狀態，也不會留下紀錄。
// 帶 IdempotencyKey 時，若已有相同 key 的已提交轉帳，直接回傳該筆（Replayed=true）。
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (rec TransferRecord, err error) {
	ctx, span := e.tracer.Start(ctx, "ledger.Transfer")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, KindOf(err).String())
		}
		span.End()
	}()

	req, err = normalize(req)
	if err != nil {
		return TransferRecord{}, err
	}
	span.SetAttributes(attribute.String("ledger.amount", req.Amount.String()))

	if req.IdempotencyKey != "" {
		prior, ok, err := e.replay(ctx, req)
		if err != nil {
			return TransferRecord{}, err
		}
		if ok {
			e.log.Info("Transfer replayed", "idempotency_key", req.IdempotencyKey, "transfer_id", prior.ID)
			return prior, nil
		}
	}

	rec, err = e.apply(ctx, req)
	if errors.Is(err, ErrDuplicateKey) {
		// 並行的相同 key 請求已先提交
		prior, ok, rerr := e.replay(ctx, req)
		if rerr != nil {
			return TransferRecord{}, rerr
		}
		if !ok {
			return TransferRecord{}, Conflict(err)
		}
		return prior, nil
	}
	if err != nil {
		e.log.Warn("Transfer failed",
			"kind", KindOf(err).String(),
			"emitter_key", req.EmitterKey,
			"receiver_key", req.ReceiverKey,
			"amount", req.Amount.String(),
			"error", err,
		)
		return TransferRecord{}, err
	}

	if e.cache != nil {
		e.cache.Invalidate(context.WithoutCancel(ctx), rec.EmitterKey, rec.ReceiverKey)
	}
	span.SetAttributes(attribute.Int64("ledger.transfer_id", rec.ID))
	e.log.Info("Transfer committed",
		"transfer_id", rec.ID,
		"emitter_key", rec.EmitterKey,
		"receiver_key", rec.ReceiverKey,
		"amount", rec.Amount.String(),
	)
	return rec, nil
}

// apply 在單一儲存交易內完成扣款、入帳與紀錄追加。
func (e *Engine) apply(ctx context.Context, req TransferRequest) (TransferRecord, error) {
	var rec TransferRecord
	err := e.store.InTx(ctx, func(tx Tx) error {
		accounts := tx.Accounts()

		emitter, err := accounts.Lookup(ctx, req.EmitterKey)
		if err != nil {
			return lookupErr(err, "emitter", req.EmitterKey)
		}
		receiver, err := accounts.Lookup(ctx, req.ReceiverKey)
		if err != nil {
			return lookupErr(err, "receiver", req.ReceiverKey)
		}

		for _, id := range LockOrder(emitter.ID, receiver.ID) {
			if err := tx.Lock(ctx, id); err != nil {
				return err
			}
		}

		// 持鎖後重新讀取，餘額檢查不可依據鎖外讀到的值
		if emitter, err = accounts.Lookup(ctx, req.EmitterKey); err != nil {
			return lookupErr(err, "emitter", req.EmitterKey)
		}
		if emitter.Balance.LessThan(req.Amount) {
			return insufficient(req.Amount.Sub(emitter.Balance))
		}

		cur, err := accounts.ApplyDelta(ctx, emitter.ID, req.Amount.Neg())
		if errors.Is(err, ErrWouldOverdraw) {
			return insufficient(req.Amount.Sub(cur.Balance))
		}
		if err != nil {
			return err
		}
		if _, err := accounts.ApplyDelta(ctx, receiver.ID, req.Amount); err != nil {
			return err
		}

		rec = TransferRecord{
			EmitterID:      emitter.ID,
			ReceiverID:     receiver.ID,
			EmitterKey:     emitter.Key,
			ReceiverKey:    receiver.Key,
			EmitterName:    emitter.Name,
			ReceiverName:   receiver.Name,
			Amount:         req.Amount,
			Detail:         req.Detail,
			IdempotencyKey: req.IdempotencyKey,
			CreatedAt:      e.now().UTC().Truncate(time.Microsecond),
		}
		return tx.History().Append(ctx, &rec)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return TransferRecord{}, err
		}
		return TransferRecord{}, classify(err)
	}
	return rec, nil
}

func (e *Engine) replay(ctx context.Context, req TransferRequest) (TransferRecord, bool, error) {
	prior, err := e.store.History().ByIdempotencyKey(ctx, req.IdempotencyKey)
	if errors.Is(err, ErrNoRecord) {
		return TransferRecord{}, false, nil
	}
	if err != nil {
		return TransferRecord{}, false, classify(err)
	}
	if prior.EmitterKey != req.EmitterKey || prior.ReceiverKey != req.ReceiverKey || !prior.Amount.Equal(req.Amount) {
		return TransferRecord{}, false, invalid("idempotency key already used for a different transfer")
	}
	prior.Replayed = true
	return prior, true, nil
}

func normalize(req TransferRequest) (TransferRequest, error) {
	req.EmitterKey = strings.TrimSpace(req.EmitterKey)
	req.ReceiverKey = strings.TrimSpace(req.ReceiverKey)
	req.Detail = strings.TrimSpace(req.Detail)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	switch {
	case req.EmitterKey == "" || req.ReceiverKey == "":
		return req, invalid("emitter and receiver keys are required")
	case req.EmitterKey == req.ReceiverKey:
		return req, invalid("emitter and receiver must be different accounts")
	case !req.Amount.IsPositive():
		return req, invalid("amount must be > 0")
	case !req.Amount.Equal(req.Amount.Truncate(MoneyScale)):
		return req, invalid("amount supports at most 2 decimal places")
	case len(req.Detail) > maxDetailLen:
		return req, invalid("detail is too long")
	case len(req.IdempotencyKey) > maxIdempotencyKeyLen:
		return req, invalid("idempotency key is too long")
	}
	return req, nil
}

// LockOrder 回傳兩個帳戶 ID 的固定上鎖順序（位元組遞增）。
func LockOrder(a, b uuid.UUID) []uuid.UUID {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return []uuid.UUID{a, b}
	}
	return []uuid.UUID{b, a}
}

func lookupErr(err error, role, key string) error {
	if errors.Is(err, ErrNoAccount) {
		return notFound(role, key)
	}
	return err
}

// classify 保留既有的 *Error，其餘儲存層錯誤一律視為 StoreUnavailable。
func classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Unavailable(err)
}
