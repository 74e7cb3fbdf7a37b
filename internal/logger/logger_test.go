package logger

import (
	"strings"
	"testing"
)

func TestSanitizeValue(t *testing.T) {
	cases := []struct {
		key  string
		val  interface{}
		want string
	}{
		{"database_url", "postgres://u:p@h/db", "[REDACTED]"},
		{"redis_password", "hunter2", "[REDACTED]"},
		{"amount", "30", "30"},
	}
	for _, c := range cases {
		if got := toString(sanitizeValue(c.key, c.val)); got != c.want {
			t.Fatalf("sanitizeValue(%q)=%q want %q", c.key, got, c.want)
		}
	}
}

// 同一電話號碼在日誌中雜湊結果一致，且不外洩原值。
func TestAccountKeysAreHashed(t *testing.T) {
	a := toString(sanitizeValue("emitter_key", "88881111"))
	b := toString(sanitizeValue("receiver_key", "88881111"))
	if a != b {
		t.Fatalf("hash mismatch: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "hash:") || strings.Contains(a, "88881111") {
		t.Fatalf("unexpected hashed value %q", a)
	}
}

func TestNopLoggerWith(t *testing.T) {
	l := Nop().With("component", "test")
	l.Info("ignored", "key", "123")
}
