// internal/server/router.go
//
// 本檔負責 HTTP 路由註冊與中介層組裝。
//   - handler.go 定義「如何處理請求」
//   - router.go 定義「請求如何被導向」
//   - main.go 組裝整體應用（注入 Engine、QueryService 與儲存）
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "transfer-ledger"

// Router 建立並回傳整個 HTTP 處理鏈。
func (s *Server) Router() http.Handler {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		gin.Recovery(),
		otelgin.Middleware(serviceName),
		AttachRequestID(),
		RequestLogger(s.log),
	)

	if len(s.corsOrigins) > 0 {
		r.Use(CORS(s.corsOrigins))
	}

	// 健康檢查：可供監控或 Docker liveness probe 使用。
	r.GET("/health", s.health)

	// ────────────────
	// API v1 路由定義
	// ────────────────
	//   - POST /api/v1/transfers
	//   - GET  /api/v1/accounts/:key/balance
	//   - GET  /api/v1/accounts/:key/history
	s.register(r.Group("/api/v1"))

	// 同時保留根路徑，方便本地開發或測試。
	s.register(r.Group(""))

	return r
}

func (s *Server) register(g *gin.RouterGroup) {
	g.POST("/transfers", s.transfer)
	g.GET("/accounts/:key/balance", s.balance)
	g.GET("/accounts/:key/history", s.history)
}
