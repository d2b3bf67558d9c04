package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevelFiltering(t *testing.T) {
	core, recorded := observer.New(zapcore.WarnLevel)
	baseLogger = zap.New(core)
	sugar = baseLogger.Sugar()

	Infof("filtered out")
	Warnf("kept %d", 1)
	Errorf("kept %d", 2)

	logs := recorded.All()
	if len(logs) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(logs))
	}
	if logs[0].Message != "kept 1" {
		t.Fatalf("unexpected first message: %q", logs[0].Message)
	}
	if logs[1].Level != zapcore.ErrorLevel {
		t.Fatalf("expected error level, got %v", logs[1].Level)
	}
}

func TestInitRejectsBadConfig(t *testing.T) {
	if err := Init(Config{Level: "nope"}); err == nil {
		t.Fatalf("expected invalid level error")
	}
	if err := Init(Config{Format: "xml"}); err == nil {
		t.Fatalf("expected invalid format error")
	}
	if err := Init(Config{Level: "debug", Format: "json"}); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
