package logger

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestInitLevelParsing(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			Init(tt.level, false)
			if got := zerolog.GlobalLevel(); got != tt.want {
				t.Errorf("Init(%q) set global level %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}
