package bank

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestKindMatchingThroughWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", insufficient(decimal.RequireFromString("5")))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatal("errors.Is should match by kind")
	}
	if errors.Is(err, ErrAccountNotFound) {
		t.Fatal("different kinds must not match")
	}
	if KindOf(err) != KindInsufficientFunds {
		t.Fatalf("KindOf=%v", KindOf(err))
	}
	if KindOf(errors.New("plain")) != KindUnknown || KindOf(nil) != KindUnknown {
		t.Fatal("untyped errors have unknown kind")
	}
}

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{notFound("receiver", "555"), "receiver account not found"},
		{notFound("", "555"), "account not found"},
		{insufficient(decimal.RequireFromString("30.5")), "insufficient funds: short by 30.50"},
		{invalid("amount must be > 0"), "amount must be > 0"},
		{Unavailable(errors.New("io")), "store_unavailable: io"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error()=%q want %q", got, tc.want)
		}
	}
}

func TestUnavailableKeepsCause(t *testing.T) {
	err := Unavailable(context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("cause lost: %v", err)
	}
	if !KindStoreUnavailable.Retryable() || !KindConflict.Retryable() || KindInsufficientFunds.Retryable() {
		t.Fatal("unexpected Retryable classification")
	}
}

func TestClassifyKeepsTypedErrors(t *testing.T) {
	typed := notFound("emitter", "1")
	if got := classify(typed); got != typed {
		t.Fatalf("typed error replaced: %v", got)
	}
	if KindOf(classify(errors.New("boom"))) != KindStoreUnavailable {
		t.Fatal("untyped store error should become StoreUnavailable")
	}
	if classify(nil) != nil {
		t.Fatal("nil stays nil")
	}
}

func TestLockOrderIsTotal(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	x, y := LockOrder(a, b), LockOrder(b, a)
	if x[0] != y[0] || x[1] != y[1] {
		t.Fatalf("order depends on argument order: %v vs %v", x, y)
	}
}

func TestNormalizeTrims(t *testing.T) {
	req, err := normalize(TransferRequest{
		EmitterKey:     "  A ",
		ReceiverKey:    "B\t",
		Amount:         decimal.RequireFromString("1.50"),
		Detail:         "  note ",
		IdempotencyKey: " k ",
	})
	if err != nil {
		t.Fatal(err)
	}
	if req.EmitterKey != "A" || req.ReceiverKey != "B" || req.Detail != "note" || req.IdempotencyKey != "k" {
		t.Fatalf("not trimmed: %+v", req)
	}
}
