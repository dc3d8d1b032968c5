package logging_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/MichaelIeong/SAGE/logging"
	"github.com/m-mizutani/gt"
)

func TestNewWithDifferentLevels(t *testing.T) {
	testCases := []struct {
		level       string
		expectDebug bool
		expectInfo  bool
		expectWarn  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warning", false, false, true},
		{"ERROR", false, false, false},
		{"bogus", false, true, true},
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := logging.New(tc.level, buf)

			logger.Debug("debug message")
			logger.Info("info message")
			logger.Warn("warn message")

			out := buf.String()
			check := func(expect bool, msg string) {
				if expect {
					gt.S(t, out).Contains(msg)
				} else {
					gt.S(t, out).NotContains(msg)
				}
			}
			check(tc.expectDebug, "debug message")
			check(tc.expectInfo, "info message")
			check(tc.expectWarn, "warn message")
		})
	}
}

func TestParseLevel(t *testing.T) {
	_, ok := logging.ParseLevel("warn")
	gt.True(t, ok)
	_, ok = logging.ParseLevel("verbose")
	gt.False(t, ok)
}

func TestWithAndFrom(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("debug", buf)

	ctx := logging.With(context.Background(), logger)
	logging.From(ctx).Info("from context")
	gt.S(t, buf.String()).Contains("from context")

	gt.Equal(t, logging.From(context.Background()), logging.Default())
}
