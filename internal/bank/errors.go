// internal/bank/errors.go
//
// 本檔集中定義帳本的錯誤分類。
// 所有錯誤皆為 *Error，以 Kind 區分；上層以 errors.Is 或 KindOf 分支，不比對字串。
// HTTP handler 依 Kind 轉換為對應的狀態碼。

package bank

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind 為封閉的錯誤分類。
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindInvalidRequest：輸入格式錯誤（非正金額、自己轉給自己、空 key）。
	KindInvalidRequest
	// KindAccountNotFound：轉出或轉入帳戶不存在。
	KindAccountNotFound
	// KindInsufficientFunds：餘額不足，可能在事前檢查或提交時發現。
	KindInsufficientFunds
	// KindStoreUnavailable：儲存層 I/O 失敗或逾時。
	KindStoreUnavailable
	// KindConflict：儲存層回報的並行衝突（序列化失敗、死結）。
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindAccountNotFound:
		return "account_not_found"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Retryable 回報呼叫端在確認前次未提交後，重送是否有意義。
func (k Kind) Retryable() bool {
	return k == KindStoreUnavailable || k == KindConflict
}

// Error 為帳本回傳的型別化錯誤。
//   - Role/Key：AccountNotFound 時標示是 emitter 或 receiver 以及查詢的 key
//   - Shortfall：InsufficientFunds 時的差額
//   - Err：底層原因
type Error struct {
	Kind      Kind
	Role      string
	Key       string
	Shortfall decimal.Decimal
	Msg       string
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case KindAccountNotFound:
		if e.Role != "" {
			return fmt.Sprintf("%s account not found", e.Role)
		}
		return "account not found"
	case KindInsufficientFunds:
		if e.Shortfall.IsPositive() {
			return fmt.Sprintf("insufficient funds: short by %s", e.Shortfall.StringFixed(MoneyScale))
		}
		return "insufficient funds"
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is 讓 errors.Is(err, ErrInsufficientFunds) 依 Kind 比對。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// 依 Kind 比對用的哨兵值。
var (
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest}
	ErrAccountNotFound   = &Error{Kind: KindAccountNotFound}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrStoreUnavailable  = &Error{Kind: KindStoreUnavailable}
	ErrConflict          = &Error{Kind: KindConflict}
)

// KindOf 取出 err 鏈上第一個 *Error 的 Kind；找不到則為 KindUnknown。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func invalid(msg string) *Error {
	return &Error{Kind: KindInvalidRequest, Msg: msg}
}

func notFound(role, key string) *Error {
	return &Error{Kind: KindAccountNotFound, Role: role, Key: key}
}

func insufficient(shortfall decimal.Decimal) *Error {
	return &Error{Kind: KindInsufficientFunds, Shortfall: shortfall}
}

// Unavailable 將儲存層 I/O 錯誤包裝為 StoreUnavailable。
func Unavailable(err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Err: err}
}

// Conflict 將儲存層並行衝突包裝為 Conflict。
func Conflict(err error) *Error {
	return &Error{Kind: KindConflict, Err: err}
}
