package logger

import "testing"

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{" info ", LevelInfo, false},
		{"warning", LevelWarning, false},
		{"WARN", LevelWarning, false},
		{"error", LevelError, false},
		{"fatal", LevelFatal, false},
		{"verbose", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestConfigure(t *testing.T) {
	original := GetLevel()
	defer SetLevel(original)

	if err := Configure("debug", 0); err != nil {
		t.Fatalf("Configure() failed: %v", err)
	}
	if GetLevel() != LevelDebug {
		t.Errorf("level = %v, want %v", GetLevel(), LevelDebug)
	}

	if err := Configure("nonsense", 0); err == nil {
		t.Error("Configure() should reject an unknown level")
	}
	if GetLevel() != LevelDebug {
		t.Error("failed Configure() must not change the level")
	}

	if err := Configure("", 0); err != nil {
		t.Errorf("empty level should be a no-op, got %v", err)
	}
}

func TestWarnAndErrorAlwaysCount(t *testing.T) {
	warnings := TotalWarnings.Load()
	errs := TotalErrors.Load()

	Warn("warn for counter test")
	Error("error for counter test")

	if got := TotalWarnings.Load() - warnings; got != 1 {
		t.Errorf("warnings delta = %d, want 1", got)
	}
	if got := TotalErrors.Load() - errs; got != 1 {
		t.Errorf("errors delta = %d, want 1", got)
	}
}

func TestHTTPStatusCounters(t *testing.T) {
	before4xx := Total4xxErrors.Load()
	before5xx := Total5xxErrors.Load()

	HTTPStatus(200)
	HTTPStatus(404)
	HTTPStatus(422)
	HTTPStatus(503)

	if got := Total4xxErrors.Load() - before4xx; got != 2 {
		t.Errorf("4xx delta = %d, want 2", got)
	}
	if got := Total5xxErrors.Load() - before5xx; got != 1 {
		t.Errorf("5xx delta = %d, want 1", got)
	}

	counters := Counters()
	for _, key := range []string{"passes", "skipped_computations", "failed_computations", "http_4xx"} {
		if _, ok := counters[key]; !ok {
			t.Errorf("Counters() missing %q", key)
		}
	}
}
