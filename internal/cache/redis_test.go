package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carol-yiyun/transfer-ledger/internal/bank"
)

func testCache(t *testing.T) *BalanceCache {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("set REDIS_ADDR to run redis cache tests")
	}
	c, err := NewBalanceCache(context.Background(), addr, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewBalanceCache err=%v", err)
	}
	c = c.WithPrefix("ledger:test:" + uuid.NewString() + ":")
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewBalanceCacheRequiresAddr(t *testing.T) {
	if _, err := NewBalanceCache(context.Background(), "  ", time.Second, nil); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func testAccount() bank.Account {
	return bank.Account{
		ID:        uuid.New(),
		Key:       "88881111",
		Name:      "Ana",
		Balance:   decimal.RequireFromString("120.50"),
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestFillGetInvalidate(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	acc := testAccount()

	_, gen, ok := c.Get(ctx, acc.Key)
	if ok {
		t.Fatal("unexpected hit before Fill")
	}
	if gen != 0 {
		t.Fatalf("initial generation=%d want 0", gen)
	}
	c.Fill(ctx, acc, gen)
	got, _, ok := c.Get(ctx, acc.Key)
	if !ok {
		t.Fatal("expected hit after Fill")
	}
	if got.ID != acc.ID || got.Name != "Ana" || !got.Balance.Equal(acc.Balance) || !got.CreatedAt.Equal(acc.CreatedAt) {
		t.Fatalf("got %+v want %+v", got, acc)
	}

	c.Invalidate(ctx, acc.Key, "unknown")
	_, gen, ok = c.Get(ctx, acc.Key)
	if ok {
		t.Fatal("expected miss after Invalidate")
	}
	if gen != 1 {
		t.Fatalf("generation after Invalidate=%d want 1", gen)
	}
}

// 失效前讀到的世代不能把舊餘額寫回快取。
func TestFillWithStaleGenerationIsDropped(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	stale := testAccount()

	_, gen, _ := c.Get(ctx, stale.Key)
	c.Invalidate(ctx, stale.Key)
	c.Fill(ctx, stale, gen)
	if _, _, ok := c.Get(ctx, stale.Key); ok {
		t.Fatal("stale fill was stored")
	}

	fresh := stale
	fresh.Balance = decimal.RequireFromString("90.50")
	_, gen, _ = c.Get(ctx, fresh.Key)
	c.Fill(ctx, fresh, gen)
	got, _, ok := c.Get(ctx, fresh.Key)
	if !ok || !got.Balance.Equal(fresh.Balance) {
		t.Fatalf("fresh fill got=%+v ok=%v", got, ok)
	}
}
