package common

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// testLoggerAdapter maps log writes onto testing.T.Log, so component logging
// only shows up for failed tests.
type testLoggerAdapter struct {
	t testing.TB
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	if len(d) > 0 && d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	a.t.Log(string(d))
	return len(d), nil
}

// NewTestLogger returns a debug-level logger writing through testing.T.
func NewTestLogger(t testing.TB) *logrus.Logger {
	logger := logrus.New()
	logger.Out = &testLoggerAdapter{t: t}
	logger.Level = logrus.DebugLevel
	return logger
}

// NewTestEntry is NewTestLogger with the standard prefix field attached.
func NewTestEntry(t testing.TB) *logrus.Entry {
	return NewTestLogger(t).WithField("prefix", "test")
}
