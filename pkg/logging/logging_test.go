package logging_test

import (
	"errors"
	"testing"

	"github.com/tcalmant/ipopo-sub000/internal/events"
	"github.com/tcalmant/ipopo-sub000/pkg/logging"
)

func TestLoggerSatisfiesEventErrorLogger(t *testing.T) {
	var _ events.ErrorLogger = logging.New("test")
}

func TestErrorDoesNotPanicOnNilErr(t *testing.T) {
	l := logging.New("test")
	l.Error("subsystem", nil, "panicked: %v", "boom")
	l.Error("subsystem", errors.New("boom"), "failed")
}
