// internal/storage/jsonstore.go
//
// 提供 JSON 快照的讀寫。
// 寫入採「暫存檔 + rename」：先寫入 .tmp 並 fsync，再以 os.Rename 取代原檔，
// 中途失敗時原檔保持完整。
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// LoadSnapshot 讀取指定路徑的 JSON 快照。
// 檔案不存在時回傳的錯誤可用 errors.Is(err, fs.ErrNotExist) 判斷。
func LoadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if snap.Meta.Version > SnapshotVersion {
		return snap, fmt.Errorf("snapshot %s has version %d, newer than supported %d", path, snap.Meta.Version, SnapshotVersion)
	}
	return snap, nil
}

// SaveSnapshot 將 Snapshot 以原子方式寫入 path。
func SaveSnapshot(path string, snap Snapshot) error {
	snap.Meta.Storage = "json_snapshot"
	snap.Meta.Version = SnapshotVersion
	snap.Meta.Timestamp = time.Now().UTC()
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	return os.Rename(tmp, path)
}
