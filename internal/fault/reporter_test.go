// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package fault

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/wneessen/geotrack/internal/logger"
)

type testNotifier struct {
	messages []string
	fail     bool
}

func (n *testNotifier) Notify(summary, body string) error {
	n.messages = append(n.messages, summary+": "+body)
	if n.fail {
		return errors.New("intentionally failing")
	}
	return nil
}

func TestRouter_Report(t *testing.T) {
	t.Run("terminal errors notify once per capability", func(t *testing.T) {
		buf := bytes.NewBuffer(nil)
		notifier := &testNotifier{}
		router := NewRouter(logger.NewLogger(slog.LevelDebug, buf), notifier)

		router.Report(&CapabilityUnavailableError{Capability: CapabilityHeading})
		router.Report(&PermissionDeniedError{Capability: CapabilityHeading})
		router.Report(&PermissionDeniedError{Capability: CapabilityLocation})

		if len(notifier.messages) != 2 {
			t.Fatalf("expected 2 notifications, got %d: %v", len(notifier.messages), notifier.messages)
		}
		if !router.Notified(CapabilityHeading) || !router.Notified(CapabilityLocation) {
			t.Error("expected both capabilities to be marked as notified")
		}
		if !bytes.Contains(buf.Bytes(), []byte("capability disabled")) {
			t.Errorf("expected terminal error to be logged, got: %s", buf.String())
		}
	})
	t.Run("sample level errors are never notified", func(t *testing.T) {
		buf := bytes.NewBuffer(nil)
		notifier := &testNotifier{}
		router := NewRouter(logger.NewLogger(slog.LevelDebug, buf), notifier)

		router.Report(&InvalidSampleError{Reason: "missing coordinates"})
		router.Report(&GeometryProjectionError{Reason: "zero radius"})
		router.Report(&ObserverFaultError{Observer: "marker", Err: errors.New("boom")})
		router.Report(nil)

		if len(notifier.messages) != 0 {
			t.Errorf("expected no notifications, got %v", notifier.messages)
		}
		if !bytes.Contains(buf.Bytes(), []byte("dropping sample")) {
			t.Errorf("expected sample errors to be logged, got: %s", buf.String())
		}
		if !bytes.Contains(buf.Bytes(), []byte("observer failed")) {
			t.Errorf("expected observer fault to be logged, got: %s", buf.String())
		}
	})
	t.Run("failing notifier is logged", func(t *testing.T) {
		buf := bytes.NewBuffer(nil)
		router := NewRouter(logger.NewLogger(slog.LevelDebug, buf), &testNotifier{fail: true})
		router.Report(&CapabilityUnavailableError{Capability: CapabilityHeading})
		if !bytes.Contains(buf.Bytes(), []byte("failed to notify user")) {
			t.Errorf("expected notifier failure to be logged, got: %s", buf.String())
		}
	})
	t.Run("nil notifier only logs", func(t *testing.T) {
		buf := bytes.NewBuffer(nil)
		router := NewRouter(logger.NewLogger(slog.LevelDebug, buf), nil)
		router.Report(&CapabilityUnavailableError{Capability: CapabilityLocation})
		if !router.Notified(CapabilityLocation) {
			t.Error("expected capability to be marked as notified")
		}
	})
}
