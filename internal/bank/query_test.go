package bank_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/carol-yiyun/transfer-ledger/internal/bank"
	"github.com/carol-yiyun/transfer-ledger/internal/storage/memory"
)

func TestGetBalanceReturnsNameAndBalance(t *testing.T) {
	s := newLedger(t, map[string]string{"A": "12.50"})
	q := bank.NewQueryService(s, nil)

	acc, err := q.GetBalance(context.Background(), " A ")
	if err != nil {
		t.Fatal(err)
	}
	if acc.Name != "user A" || !acc.Balance.Equal(dec("12.5")) {
		t.Fatalf("got %+v", acc)
	}

	if _, err := q.GetBalance(context.Background(), "nobody"); !errors.Is(err, bank.ErrAccountNotFound) {
		t.Fatalf("want AccountNotFound, got %v", err)
	}
	if _, err := q.GetBalance(context.Background(), ""); !errors.Is(err, bank.ErrInvalidRequest) {
		t.Fatalf("want InvalidRequest, got %v", err)
	}
}

func TestGetBalanceReadsThroughCache(t *testing.T) {
	s := newLedger(t, map[string]string{"A": "10"})
	cache := newFakeCache()
	q := bank.NewQueryService(s, nil, bank.WithQueryCache(cache))

	for i := 0; i < 3; i++ {
		if _, err := q.GetBalance(context.Background(), "A"); err != nil {
			t.Fatal(err)
		}
	}
	if cache.hits != 2 {
		t.Fatalf("cache hits=%d want 2", cache.hits)
	}
}

func TestGetHistoryOrderAndLimit(t *testing.T) {
	s := newLedger(t, map[string]string{"A": "100", "B": "100", "C": "0"})
	e := bank.NewEngine(s, nil)
	q := bank.NewQueryService(s, nil, bank.WithHistoryLimit(2))

	if hist, err := q.GetHistory(context.Background(), "C", 0); err != nil || hist == nil || len(hist) != 0 {
		t.Fatalf("empty history=%v err=%v", hist, err)
	}

	var ids []int64
	for _, p := range [][2]string{{"A", "B"}, {"B", "A"}, {"A", "C"}} {
		rec, err := transfer(e, p[0], p[1], "5")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, rec.ID)
	}

	for _, limit := range []int{0, 2, 10} {
		hist, err := q.GetHistory(context.Background(), "A", limit)
		if err != nil {
			t.Fatal(err)
		}
		if len(hist) != 2 || hist[0].ID != ids[2] || hist[1].ID != ids[1] {
			t.Fatalf("limit=%d history=%+v", limit, hist)
		}
	}
	hist, err := q.GetHistory(context.Background(), "A", 1)
	if err != nil || len(hist) != 1 || hist[0].ReceiverKey != "C" {
		t.Fatalf("limit=1 history=%+v err=%v", hist, err)
	}

	if _, err := q.GetHistory(context.Background(), "nobody", 0); !errors.Is(err, bank.ErrAccountNotFound) {
		t.Fatalf("want AccountNotFound, got %v", err)
	}
}

// pausingStore 讓第一次交易外的帳戶查詢在讀取後停住，直到 release 關閉。
type pausingStore struct {
	*memory.Store
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (p *pausingStore) Accounts() bank.AccountStore {
	return pausingAccounts{AccountStore: p.Store.Accounts(), p: p}
}

type pausingAccounts struct {
	bank.AccountStore
	p *pausingStore
}

func (a pausingAccounts) Lookup(ctx context.Context, key string) (bank.Account, error) {
	acc, err := a.AccountStore.Lookup(ctx, key)
	a.p.once.Do(func() {
		close(a.p.read)
		<-a.p.release
	})
	return acc, err
}

// 轉帳提交前開始的回源查詢，不能在轉帳回傳後把舊餘額留在快取中。
func TestCachedBalanceAfterRacingTransfer(t *testing.T) {
	s := newLedger(t, map[string]string{"A": "100", "B": "0"})
	slow := &pausingStore{Store: s, read: make(chan struct{}), release: make(chan struct{})}
	cache := newFakeCache()
	e := bank.NewEngine(s, nil, bank.WithCache(cache))
	q := bank.NewQueryService(slow, nil, bank.WithQueryCache(cache))
	ctx := context.Background()

	type result struct {
		acc bank.Account
		err error
	}
	before := make(chan result, 1)
	go func() {
		acc, err := q.GetBalance(ctx, "A")
		before <- result{acc, err}
	}()
	<-slow.read

	if _, err := transfer(e, "A", "B", "30"); err != nil {
		t.Fatal(err)
	}
	after := make(chan result, 1)
	go func() {
		acc, err := q.GetBalance(ctx, "A")
		after <- result{acc, err}
	}()
	close(slow.release)

	if r := <-before; r.err != nil || !r.acc.Balance.Equal(dec("100")) {
		t.Fatalf("in-flight GetBalance=%+v err=%v want 100", r.acc, r.err)
	}
	if r := <-after; r.err != nil || !r.acc.Balance.Equal(dec("70")) {
		t.Fatalf("GetBalance started after commit=%+v err=%v want 70", r.acc, r.err)
	}
	for i := 0; i < 2; i++ {
		acc, err := q.GetBalance(ctx, "A")
		if err != nil || !acc.Balance.Equal(dec("70")) {
			t.Fatalf("GetBalance #%d=%+v err=%v want 70", i, acc, err)
		}
	}
}
