// internal/server/response.go
//
// 本檔負責統一 HTTP 錯誤回應格式：{"error": {"message", "code", "shortfall"?}}。
// bank 的錯誤分類在此集中轉換為狀態碼，handler 不自行判斷。
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carol-yiyun/transfer-ledger/internal/bank"
)

type APIError struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Shortfall string `json:"shortfall,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func writeErr(c *gin.Context, status int, apiErr APIError) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: apiErr})
}

func respondBadRequest(c *gin.Context, msg string) {
	writeErr(c, http.StatusBadRequest, APIError{Message: msg, Code: bank.KindInvalidRequest.String()})
}

// respondError 依錯誤種類輸出：
//
//	InvalidRequest    → 400 invalid_request
//	AccountNotFound   → 404 account_not_found
//	InsufficientFunds → 409 insufficient_funds（含 shortfall）
//	Conflict          → 409 write_conflict
//	逾時              → 504 outcome_unknown（可能已提交，應以同一 Idempotency-Key 重送）
//	StoreUnavailable  → 503 store_unavailable
func respondError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	var be *bank.Error
	errors.As(err, &be)

	switch bank.KindOf(err) {
	case bank.KindInvalidRequest:
		writeErr(c, http.StatusBadRequest, APIError{Message: err.Error(), Code: "invalid_request"})
		return
	case bank.KindAccountNotFound:
		writeErr(c, http.StatusNotFound, APIError{Message: err.Error(), Code: "account_not_found"})
		return
	case bank.KindInsufficientFunds:
		apiErr := APIError{Message: err.Error(), Code: "insufficient_funds"}
		if be != nil && be.Shortfall.IsPositive() {
			apiErr.Shortfall = be.Shortfall.StringFixed(bank.MoneyScale)
		}
		writeErr(c, http.StatusConflict, apiErr)
		return
	case bank.KindConflict:
		writeErr(c, http.StatusConflict, APIError{Message: "concurrent write conflict, retry the transfer", Code: "write_conflict"})
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		writeErr(c, http.StatusGatewayTimeout, APIError{
			Message: "transfer outcome unknown, retry with the same Idempotency-Key",
			Code:    "outcome_unknown",
		})
		return
	}
	writeErr(c, http.StatusServiceUnavailable, APIError{Message: "ledger store unavailable", Code: "store_unavailable"})
}
