// internal/server/handler.go
//
// Package server
// ─────────────────────────────────────────────
// 提供 HTTP RESTful 介面，作為帳本的應用層 (Application Layer)。
// 每個 handler 僅負責：
//  1. 接收與驗證 HTTP 請求
//  2. 呼叫 bank 層執行轉帳或查詢
//  3. 回傳標準化 JSON 回應
//
// 持久化（含記憶體模式的 JSON 快照）屬於儲存層提交的一部分，handler 不另外處理。
package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/carol-yiyun/transfer-ledger/internal/bank"
	"github.com/carol-yiyun/transfer-ledger/internal/logger"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "X-Idempotency-Replayed"
)

// Ledger 為轉帳入口（bank.Engine）。
type Ledger interface {
	Transfer(ctx context.Context, req bank.TransferRequest) (bank.TransferRecord, error)
}

// Queries 為唯讀查詢（bank.QueryService）。
type Queries interface {
	GetBalance(ctx context.Context, key string) (bank.Account, error)
	GetHistory(ctx context.Context, key string, limit int) ([]bank.TransferRecord, error)
}

// Server 為 HTTP 層核心結構：
// - ledger / queries：注入的商業邏輯層。
// - transferTimeout：單次轉帳可用的時間，逾時的結果對呼叫端而言不確定。
type Server struct {
	ledger          Ledger
	queries         Queries
	log             *logger.Logger
	transferTimeout time.Duration
	corsOrigins     []string
}

type Option func(*Server)

func WithLogger(log *logger.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

func WithTransferTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.transferTimeout = d
		}
	}
}

// WithCORSOrigins 啟用 CORS；未設定時不加掛 CORS 中介層。
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// NewServer 建立新的 HTTP 伺服器。
func NewServer(ledger Ledger, queries Queries, opts ...Option) *Server {
	s := &Server{
		ledger:          ledger,
		queries:         queries,
		log:             logger.Nop(),
		transferTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "HTTPServer")
	return s
}

type transferBody struct {
	EmitterKey  string          `json:"emitter_key"`
	ReceiverKey string          `json:"receiver_key"`
	Amount      decimal.Decimal `json:"amount"`
	Detail      string          `json:"detail"`
}

// transferResponse 為轉帳紀錄的對外格式；金額固定兩位小數。
type transferResponse struct {
	ID             int64     `json:"id"`
	EmitterKey     string    `json:"emitter_key"`
	ReceiverKey    string    `json:"receiver_key"`
	EmitterName    string    `json:"emitter_name"`
	ReceiverName   string    `json:"receiver_name"`
	Amount         string    `json:"amount"`
	Detail         string    `json:"detail,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	// Direction 僅出現在歷史查詢："out" 為轉出，"in" 為轉入。
	Direction string `json:"direction,omitempty"`
}

func toTransferResponse(rec bank.TransferRecord) transferResponse {
	return transferResponse{
		ID:             rec.ID,
		EmitterKey:     rec.EmitterKey,
		ReceiverKey:    rec.ReceiverKey,
		EmitterName:    rec.EmitterName,
		ReceiverName:   rec.ReceiverName,
		Amount:         rec.Amount.StringFixed(bank.MoneyScale),
		Detail:         rec.Detail,
		IdempotencyKey: rec.IdempotencyKey,
		Timestamp:      rec.CreatedAt,
	}
}

type balanceResponse struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Balance string `json:"balance"`
}

// transfer 處理轉帳：
//
//	POST /transfers  → JSON {emitter_key, receiver_key, amount, detail}
//
// 帶 Idempotency-Key 重送時回傳先前的紀錄（200 + X-Idempotency-Replayed）。
func (s *Server) transfer(c *gin.Context) {
	var body transferBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.transferTimeout)
	defer cancel()

	rec, err := s.ledger.Transfer(ctx, bank.TransferRequest{
		EmitterKey:     body.EmitterKey,
		ReceiverKey:    body.ReceiverKey,
		Amount:         body.Amount,
		Detail:         body.Detail,
		IdempotencyKey: c.GetHeader(headerIdempotencyKey),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if rec.Replayed {
		c.Header(headerReplayed, "true")
		c.JSON(http.StatusOK, toTransferResponse(rec))
		return
	}
	c.JSON(http.StatusCreated, toTransferResponse(rec))
}

// balance 處理 GET /accounts/:key/balance。
func (s *Server) balance(c *gin.Context) {
	acc, err := s.queries.GetBalance(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{
		Key:     acc.Key,
		Name:    acc.Name,
		Balance: acc.Balance.StringFixed(bank.MoneyScale),
	})
}

// history 處理 GET /accounts/:key/history?limit=N，新到舊排序。
func (s *Server) history(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondBadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	key := strings.TrimSpace(c.Param("key"))
	records, err := s.queries.GetHistory(c.Request.Context(), key, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]transferResponse, 0, len(records))
	for _, rec := range records {
		r := toTransferResponse(rec)
		r.IdempotencyKey = ""
		if rec.EmitterKey == key {
			r.Direction = "out"
		} else {
			r.Direction = "in"
		}
		out = append(out, r)
	}
	c.JSON(http.StatusOK, out)
}

// health 提供健康檢查端點：GET /health。
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
