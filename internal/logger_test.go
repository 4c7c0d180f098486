package internal

import "testing"

func TestSetLogLevelDebugEnablesVerboseMode(t *testing.T) {
	originalVerboseMode := VerboseMode
	defer func() { VerboseMode = originalVerboseMode }()

	VerboseMode = false
	SetLogLevel("debug")
	if !VerboseMode {
		t.Error("VerboseMode should be true when log level is debug")
	}

	VerboseMode = false
	for _, level := range []string{"info", "warn", "error", "unknown"} {
		SetLogLevel(level)
		if VerboseMode {
			t.Errorf("VerboseMode should stay false for log level %q", level)
		}
	}
}

func TestLoggerIsInitialized(t *testing.T) {
	if Logger == nil {
		t.Fatal("package logger should be initialized")
	}
}
