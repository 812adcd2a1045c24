package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func TestNewWithWriterLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := NewWithWriter(Config{Level: tt.level}, &bytes.Buffer{})
			if got := l.GetLevel(); got != tt.want {
				t.Errorf("level = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(Config{Level: "info"}, &buf)

	l.Debug().Msg("hidden")
	l.Info().Str("path", "reminder").Msg("run finished")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level: %s", out)
	}
	for _, want := range []string{`"path":"reminder"`, `"message":"run finished"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestNewWithWriterPretty(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(Config{Level: "info", Pretty: true}, &buf)

	l.Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, "hello") {
		t.Errorf("output missing message: %s", out)
	}
	if strings.Contains(out, `"message"`) {
		t.Errorf("pretty output should not be JSON: %s", out)
	}
}

func TestFileWriterDefaults(t *testing.T) {
	type rotation struct {
		Filename   string
		MaxSize    int
		MaxBackups int
	}

	tests := []struct {
		name string
		cfg  Config
		want rotation
	}{
		{
			name: "defaults",
			cfg:  Config{File: "review.log"},
			want: rotation{Filename: "review.log", MaxSize: 50, MaxBackups: 5},
		},
		{
			name: "explicit",
			cfg:  Config{File: "review.log", MaxSizeMB: 10, MaxBackups: 2},
			want: rotation{Filename: "review.log", MaxSize: 10, MaxBackups: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := fileWriter(tt.cfg)
			got := rotation{Filename: w.Filename, MaxSize: w.MaxSize, MaxBackups: w.MaxBackups}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("rotation mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFileWriterWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review.log")
	w := fileWriter(Config{File: path})
	t.Cleanup(func() { _ = w.Close() })

	l := NewWithWriter(Config{Level: "info"}, w)
	l.Info().Msg("written to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing message: %s", data)
	}
}
