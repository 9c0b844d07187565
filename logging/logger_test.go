package logging

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestNewReturnsLogger(t *testing.T) {
	logger := New(DefaultConfig())
	if logger == nil {
		t.Fatal("New returned nil")
	}
	logger.Debug().Str("key", "value").Msg("below default level")
}

func TestNewIgnoresUnknownOutputs(t *testing.T) {
	logger := New(Config{Level: "error", Outputs: []string{"carrier-pigeon", "memory"}})
	if logger == nil {
		t.Fatal("New returned nil")
	}
	logger.Info().Msg("discarded")
}

func TestNewWithOutputWritesText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("info", &buf)

	logger.Info().Str("module", "CList").Int("contacts", 3).Msg("engine installed")

	out := buf.String()
	if !strings.Contains(out, "engine installed") {
		t.Errorf("expected message in output, got: %s", out)
	}
	if !strings.Contains(out, "module=CList") || !strings.Contains(out, "contacts=3") {
		t.Errorf("expected fields in output, got: %s", out)
	}
	if !strings.Contains(out, "contacts=3 module=CList") {
		t.Errorf("expected fields sorted by key, got: %s", out)
	}
}

func TestNewWithOutputIncludesError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("info", &buf)

	logger.Warn().Err(errors.New("permission denied")).Msg("photo not removed")

	if !strings.Contains(buf.String(), "permission denied") {
		t.Errorf("expected error text in output, got: %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("warn", &buf)

	logger.Info().Msg("info should not appear")
	logger.Error().Msg("error should appear")

	out := buf.String()
	if strings.Contains(out, "info should not appear") {
		t.Error("info message appeared at warn level")
	}
	if !strings.Contains(out, "error should appear") {
		t.Errorf("error message missing at warn level, got: %s", out)
	}
}

func TestSilentLoggerDoesNotReachGlobalWriters(t *testing.T) {
	var buf bytes.Buffer
	_ = NewWithOutput("info", &buf)
	buf.Reset()

	silent := NewSilentLogger()
	silent.Info().Str("key", "value").Msg("should not appear")
	silent.Error().Msg("should not appear either")

	if buf.Len() > 0 {
		t.Errorf("silent logger wrote %d bytes: %s", buf.Len(), buf.String())
	}
}

func TestWithCorrelationIdReturnsNewLogger(t *testing.T) {
	logger := NewSilentLogger()
	correlated := logger.WithCorrelationId("session-1")
	if correlated == nil || correlated == logger {
		t.Fatal("expected a distinct correlated logger")
	}
	correlated.Info().Msg("tagged")
}

func TestSilentLoggerConcurrentUse(t *testing.T) {
	logger := NewSilentLogger()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				logger.Info().Int("id", id).Int("j", j).Msg("concurrent")
			}
		}(i)
	}
	wg.Wait()
}
