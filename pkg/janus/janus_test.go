//go:build janus_testgateway

package janus

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arqut/janus-plugin-go/pkg/logger"
	"github.com/arqut/janus-plugin-go/pkg/refcount"
)

func setupLog(t *testing.T, level logger.Level) {
	t.Helper()
	SetStubLogParams(level, false, false)
	StubLogLines()
	t.Cleanup(func() {
		SetStubLogParams(logger.Info, false, false)
		StubLogLines()
	})
}

func TestResult(t *testing.T) {
	if err := Result(0); err != nil {
		t.Fatalf("Expected nil for success, got %v", err)
	}

	err := Result(ErrorSessionNotFound)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.Message != "Session not found" {
		t.Errorf("Unexpected message %q", apiErr.Message)
	}
	if err.Error() != "Session not found (code: 458)" {
		t.Errorf("Unexpected error text %q", err.Error())
	}
	if !errors.Is(err, &APIError{Code: ErrorSessionNotFound}) {
		t.Error("Expected errors.Is to match on the code")
	}
	if errors.Is(err, &APIError{Code: ErrorHandleNotFound}) {
		t.Error("Different codes must not match")
	}
}

func TestNewLoggerFollowsGatewayLevel(t *testing.T) {
	setupLog(t, logger.Warn)

	log := NewLogger("[janus.plugin.test]")
	log.Info("hidden")
	log.Warn("slow link on %s", "video")

	want := []string{"[WARN] [janus.plugin.test] slow link on video\n"}
	if diff := cmp.Diff(want, StubLogLines()); diff != "" {
		t.Errorf("Log mismatch (-want +got):\n%s", diff)
	}

	SetStubLogParams(logger.Dbg, false, true)
	log.Err("failed")
	want = []string{"\x1b[31m[ERR] \x1b[0m[janus.plugin.test] failed\n"}
	if diff := cmp.Diff(want, StubLogLines()); diff != "" {
		t.Errorf("Log mismatch after settings change (-want +got):\n%s", diff)
	}
}

func TestLogKeepsPercentSigns(t *testing.T) {
	setupLog(t, logger.Info)

	Log(logger.Info, "%s", "100% done")
	if diff := cmp.Diff([]string{"100% done\n"}, StubLogLines()); diff != "" {
		t.Errorf("Log mismatch (-want +got):\n%s", diff)
	}

	Log(logger.Dbg, "hidden")
	if lines := StubLogLines(); len(lines) != 0 {
		t.Errorf("Expected nothing above the gateway level, got %q", lines)
	}
}

func TestTraceRefcounts(t *testing.T) {
	setupLog(t, logger.Info)
	TraceRefcounts(true)
	defer TraceRefcounts(false)

	var count int32 = 1
	refcount.Increase(&count)
	refcount.Decrease(&count)

	lines := StubLogLines()
	if len(lines) != 2 {
		t.Fatalf("Expected two trace lines, got %q", lines)
	}
	if !strings.HasPrefix(lines[0], "[go:increase] ") || !strings.HasSuffix(lines[0], " (2)\n") {
		t.Errorf("Unexpected increase line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "[go:decrease] ") || !strings.HasSuffix(lines[1], " (1)\n") {
		t.Errorf("Unexpected decrease line %q", lines[1])
	}
}

func TestVersions(t *testing.T) {
	if PluginAPIVersion != 15 || EventHandlerAPIVersion != 3 {
		t.Errorf("Unexpected API versions %d/%d", PluginAPIVersion, EventHandlerAPIVersion)
	}
}
