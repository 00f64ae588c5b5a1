package series

import (
	"testing"
	"time"
)

func TestTimeframe_Duration(t *testing.T) {
	tests := []struct {
		tf      Timeframe
		want    time.Duration
		wantErr bool
	}{
		{"1m", time.Minute, false},
		{"15m", 15 * time.Minute, false},
		{"4h", 4 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"1w", 7 * 24 * time.Hour, false},
		{"30s", 30 * time.Second, false},
		{"", 0, true},
		{"h", 0, true},
		{"0m", 0, true},
		{"-5m", 0, true},
		{"5y", 0, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.tf), func(t *testing.T) {
			got, err := tt.tf.Duration()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Duration(%q) expected error", tt.tf)
				}
				return
			}
			if err != nil {
				t.Fatalf("Duration(%q) unexpected error: %v", tt.tf, err)
			}
			if got != tt.want {
				t.Errorf("Duration(%q) = %v, want %v", tt.tf, got, tt.want)
			}
		})
	}
}

func TestTimeframe_CodeRoundTrip(t *testing.T) {
	for _, tf := range []Timeframe{"1m", "5m", "1h", "4h", "1d", "1w", "45s"} {
		code, err := tf.Code()
		if err != nil {
			t.Fatalf("Code(%q): %v", tf, err)
		}
		back, err := TimeframeFromCode(code)
		if err != nil {
			t.Fatalf("TimeframeFromCode(%d): %v", code, err)
		}
		if back != tf {
			t.Errorf("round trip %q -> %d -> %q", tf, code, back)
		}
	}
	if _, err := TimeframeFromCode(0); err == nil {
		t.Error("code 0 should be rejected")
	}
}
