package logger_test

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TalpaLabs/coreminer/logger"
)

func TestLoggerWriteAndTail(t *testing.T) {
	log := logger.NewLogger(100)
	log.SetSlog(slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))

	w := &strings.Builder{}
	log.Write(w)
	require.Equal(t, "", w.String())

	log.Log(logger.Allow, "test", "this is a test")
	w.Reset()
	log.Write(w)
	require.Equal(t, "test: this is a test\n", w.String())

	log.Log(logger.Allow, "test2", "this is another test")
	w.Reset()
	log.Write(w)
	require.Equal(t, "test: this is a test\ntest2: this is another test\n", w.String())

	w.Reset()
	log.Tail(w, 100)
	require.Equal(t, "test: this is a test\ntest2: this is another test\n", w.String())

	w.Reset()
	log.Tail(w, 1)
	require.Equal(t, "test2: this is another test\n", w.String())

	w.Reset()
	log.Tail(w, 0)
	require.Equal(t, "test: this is a test\ntest2: this is another test\n", w.String())
}

func TestLoggerRingEviction(t *testing.T) {
	log := logger.NewLogger(2)
	log.SetSlog(slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))

	log.Log(logger.Allow, "a", "1")
	log.Log(logger.Allow, "b", "2")
	log.Log(logger.Allow, "c", "3")

	w := &strings.Builder{}
	log.Write(w)
	require.Equal(t, "b: 2\nc: 3\n", w.String())
}

type neverAllow struct{}

func (neverAllow) AllowLogging() bool { return false }

func TestLoggerPermission(t *testing.T) {
	log := logger.NewLogger(10)
	log.SetSlog(slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))

	log.Log(neverAllow{}, "x", "should not appear")
	w := &strings.Builder{}
	log.Write(w)
	require.Equal(t, "", w.String())
}
