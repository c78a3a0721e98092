package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"adscraper/pkg/config"
)

var (
	_ Logger = (*zerologLogger)(nil)
	_ Logger = (*TestLogger)(nil)
	_ Logger = (*testLoggerContext)(nil)
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{
			name: "valid config with info level",
			cfg: &config.LoggingConfig{
				Level: "info",
			},
			wantErr: false,
		},
		{
			name: "valid config with debug level",
			cfg: &config.LoggingConfig{
				Level: "debug",
			},
			wantErr: false,
		},
		{
			name: "invalid log level",
			cfg: &config.LoggingConfig{
				Level: "invalid",
			},
			wantErr: true,
		},
		{
			name: "config with file output",
			cfg: &config.LoggingConfig{
				Level: "info",
				File:  "/tmp/adscraper-test.log",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"fatal", zerolog.FatalLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"bogus", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestWithFieldsAccumulate(t *testing.T) {
	var buf bytes.Buffer
	zlog := zerolog.New(&buf)
	l := &zerologLogger{
		logger: &zlog,
		fields: make(map[string]interface{}),
	}

	child := l.WithField("host", "www.example.com").WithField("page", 2)
	child.Info("fetch scheduled")

	out := buf.String()
	for _, want := range []string{"host", "www.example.com", "page", "fetch scheduled"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}

	// Parent logger must be unaffected by the child's fields
	buf.Reset()
	l.Info("parent message")
	if bytes.Contains(buf.Bytes(), []byte("host")) {
		t.Errorf("parent logger leaked child fields: %s", buf.String())
	}
}

func TestTestLoggerCaptures(t *testing.T) {
	tl := NewTestLogger()

	tl.Info("plain message")
	tl.WithField("host", "a.example").Warn("blocked outcome")
	tl.WithError(errors.New("boom")).Error("fetch failed")

	if !tl.HasMessage("plain message") {
		t.Error("expected plain message to be captured")
	}

	warns := tl.GetMessagesByLevel("WARN")
	if len(warns) != 1 {
		t.Fatalf("expected 1 warn message, got %d", len(warns))
	}
	if warns[0].Fields["host"] != "a.example" {
		t.Errorf("warn fields = %v, want host=a.example", warns[0].Fields)
	}

	errs := tl.GetMessagesByLevel("ERROR")
	if len(errs) != 1 || errs[0].Error == nil {
		t.Fatalf("expected 1 error message carrying an error, got %+v", errs)
	}

	tl.Clear()
	if len(tl.GetMessages()) != 0 {
		t.Error("Clear() did not remove captured messages")
	}
}
