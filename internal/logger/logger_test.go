package logger

import (
	"testing"

	"go.uber.org/zap"
)

func TestInitLevels(t *testing.T) {
	cases := map[string]bool{
		"debug": true,
		"info":  false,
		"warn":  false,
		"bogus": false,
	}
	for level, debugEnabled := range cases {
		Init(level, "json")
		if got := Log.Core().Enabled(zap.DebugLevel); got != debugEnabled {
			t.Fatalf("level %q: expected debug enabled=%v, got %v", level, debugEnabled, got)
		}
	}
	Init("error", "console")
	if Log.Core().Enabled(zap.WarnLevel) {
		t.Fatal("expected warn disabled at error level")
	}
}
