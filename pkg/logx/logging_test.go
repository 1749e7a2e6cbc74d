package logx

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestFormatPlainJSON(t *testing.T) {
	t.Parallel()

	line := []byte(`{"level":"error","time":"2024-01-01T00:00:00Z","message":"dispatch failed","job_id":"alert:u1","attempt":2}` + "\n")
	got := formatPlainJSON(line)
	want := "[ERROR] dispatch failed\n- attempt=2\n- job_id=alert:u1"
	if got != want {
		t.Fatalf("formatPlainJSON()=%q want %q", got, want)
	}

	if got := formatPlainJSON([]byte("  not json  ")); got != "not json" {
		t.Fatalf("raw line = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{" WARNING ", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tc := range tests {
		if got := parseLevel(tc.in, LevelInfo); got != tc.want {
			t.Fatalf("parseLevel(%q)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestServiceForwardsAboveMinLevel(t *testing.T) {
	svc, log := New(Config{
		Level:   "debug",
		Console: false,
		File:    FileConfig{Enabled: false},
		Forward: ForwardConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100},
	})
	defer svc.Close()

	got := make(chan string, 4)
	svc.SetForward(func(ctx context.Context, text string) error {
		got <- text
		return nil
	})

	log.Info("ignored")
	log.Warn("disk almost full", String("path", "/var"))

	select {
	case msg := <-got:
		if !strings.HasPrefix(msg, "[WARN] disk almost full") || !strings.Contains(msg, "- path=/var") {
			t.Fatalf("unexpected forwarded text %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warn line was not forwarded")
	}

	select {
	case msg := <-got:
		t.Fatalf("unexpected extra forward %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("nothing", String("k", "v"))
	if l.With(String("a", "b")).IsZero() {
		t.Fatal("derived logger should not be zero")
	}
}
