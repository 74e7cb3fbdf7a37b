// cmd/server/main.go

// 本服務提供轉帳、餘額查詢與轉帳紀錄查詢的 RESTful API。
// 此檔案負責依設定組裝各模組（storage, cache, bank, server）並啟動 HTTP 伺服器；
// 記憶體模式下啟動時載入 JSON 快照，每次提交在交易內寫回快照。

package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carol-yiyun/transfer-ledger/internal/bank"
	"github.com/carol-yiyun/transfer-ledger/internal/cache"
	"github.com/carol-yiyun/transfer-ledger/internal/config"
	"github.com/carol-yiyun/transfer-ledger/internal/logger"
	"github.com/carol-yiyun/transfer-ledger/internal/observability"
	"github.com/carol-yiyun/transfer-ledger/internal/server"
	"github.com/carol-yiyun/transfer-ledger/internal/storage"
	"github.com/carol-yiyun/transfer-ledger/internal/storage/memory"
	"github.com/carol-yiyun/transfer-ledger/internal/storage/sqlstore"
)

func main() {
	log, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Load(log)
	ctx := context.Background()

	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.OTelEnabled,
		ServiceName: "transfer-ledger",
		Environment: cfg.Env,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
	})

	store, closeStore := openStore(ctx, cfg, log)

	var engineOpts []bank.Option
	queryOpts := []bank.QueryOption{bank.WithHistoryLimit(cfg.HistoryLimit)}
	if cfg.RedisAddr != "" {
		bc, err := cache.NewBalanceCache(ctx, cfg.RedisAddr, cfg.BalanceCacheTTL, log)
		if err != nil {
			log.Warn("Balance cache disabled", "error", err)
		} else {
			defer bc.Close()
			engineOpts = append(engineOpts, bank.WithCache(bc))
			queryOpts = append(queryOpts, bank.WithQueryCache(bc))
		}
	}

	engine := bank.NewEngine(store, log, engineOpts...)
	queries := bank.NewQueryService(store, log, queryOpts...)
	s := server.NewServer(engine, queries,
		server.WithLogger(log),
		server.WithTransferTimeout(cfg.TransferTimeout),
		server.WithCORSOrigins(cfg.CORSOrigins),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("Ledger server running", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", "error", err)
		}
	}()

	// 監聽 SIGINT/SIGTERM，等待進行中的請求結束後關閉儲存
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}
	closeStore()
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Warn("otel shutdown failed", "error", err)
	}
}

// openStore 依 STORE_DRIVER 建立儲存，並回傳關閉函式。
// 記憶體模式的每次提交都會寫入快照，寫入失敗則該次提交不生效。
func openStore(ctx context.Context, cfg config.Config, log *logger.Logger) (bank.Store, func()) {
	if cfg.StoreDriver == config.DriverMemory {
		st := memory.New(log, memory.WithPersist(func(snap storage.Snapshot) error {
			return storage.SaveSnapshot(cfg.SnapshotPath, snap)
		}))
		snap, err := storage.LoadSnapshot(cfg.SnapshotPath)
		switch {
		case err == nil:
			if err := st.Restore(snap); err != nil {
				log.Fatal("Snapshot restore failed", "path", cfg.SnapshotPath, "error", err)
			}
		case errors.Is(err, fs.ErrNotExist):
			log.Warn("No snapshot found, starting with an empty ledger", "path", cfg.SnapshotPath)
		default:
			log.Fatal("Snapshot load failed", "path", cfg.SnapshotPath, "error", err)
		}
		return st, func() {}
	}

	st, err := sqlstore.Open(cfg.StoreDriver, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("SQL store unavailable", "driver", cfg.StoreDriver, "error", err)
	}
	// 快照檔存在時，將其中的帳戶匯入資料庫（已存在的 key 略過）
	if snap, err := storage.LoadSnapshot(cfg.SnapshotPath); err == nil {
		if _, err := st.SeedAccounts(ctx, snap.Accounts); err != nil {
			log.Warn("Account seeding failed", "error", err)
		}
	}
	closeStore := func() {
		if err := st.Close(); err != nil {
			log.Warn("SQL store close failed", "error", err)
		}
	}
	return st, closeStore
}
