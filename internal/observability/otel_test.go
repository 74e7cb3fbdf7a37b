package observability

import (
	"context"
	"testing"
)

func TestInitOTelDisabledIsNoop(t *testing.T) {
	shutdown := InitOTel(context.Background(), nil, OtelConfig{Enabled: false})
	if shutdown == nil {
		t.Fatal("shutdown must never be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown err=%v", err)
	}
}

func TestSampleRatioClamp(t *testing.T) {
	cases := map[float64]float64{0: 1, -0.5: 0, 0.25: 0.25, 3: 1}
	for in, want := range cases {
		if got := sampleRatio(in); got != want {
			t.Errorf("sampleRatio(%v)=%v want %v", in, got, want)
		}
	}
}
