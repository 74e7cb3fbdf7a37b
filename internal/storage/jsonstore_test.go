// internal/storage/jsonstore_test.go
//
// 驗證 JSON 快照寫入後可完整讀回，且不會殘留暫存檔。
package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestJSONSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")

	a, b := uuid.New(), uuid.New()
	orig := Snapshot{
		Meta:   Meta{Note: "test"},
		NextID: 2,
		Accounts: []PersistAccount{
			{ID: a, Key: "88881111", Name: "A", Balance: decimal.RequireFromString("70.50")},
			{ID: b, Key: "88882222", Name: "B", Balance: decimal.RequireFromString("80")},
		},
		Transfers: []PersistTransfer{
			{ID: 1, EmitterID: a, ReceiverID: b, Amount: decimal.RequireFromString("29.50"), CreatedAt: time.Now().UTC()},
		},
	}

	// 1️⃣ 寫入
	if err := SaveSnapshot(path, orig); err != nil {
		t.Fatalf("SaveSnapshot err=%v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("temp file should be renamed away, stat err=%v", err)
	}

	// 2️⃣ 讀回
	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot err=%v", err)
	}

	// 3️⃣ 比對
	if loaded.NextID != orig.NextID || len(loaded.Accounts) != 2 || len(loaded.Transfers) != 1 {
		t.Fatalf("mismatch: loaded=%+v", loaded)
	}
	if loaded.Meta.Storage != "json_snapshot" || loaded.Meta.Version != SnapshotVersion {
		t.Fatalf("meta mismatch: %+v", loaded.Meta)
	}
	if !loaded.Accounts[0].Balance.Equal(decimal.RequireFromString("70.5")) {
		t.Fatalf("balance=%s want 70.5", loaded.Accounts[0].Balance)
	}
	if loaded.Transfers[0].EmitterID != a || loaded.Transfers[0].ReceiverID != b {
		t.Fatalf("transfer parties mismatch: %+v", loaded.Transfers[0])
	}
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("want fs.ErrNotExist, got %v", err)
	}
}

func TestLoadSnapshotRejectsNewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte(`{"_meta":{"version":99},"accounts":[]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSnapshot(path); err == nil {
		t.Fatal("expected version error")
	}
}
