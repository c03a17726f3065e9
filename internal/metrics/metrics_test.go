package metrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"wpplink/internal/session"
	"wpplink/internal/wpp"
)

func TestCollectorCountsFrames(t *testing.T) {
	c := New(nil)

	c.FrameSent(wpp.CmdProbe, 5)
	c.FrameSent(wpp.CmdProbe, 5)
	c.FrameReceived(wpp.CmdBatteryStatus, 27)
	c.UnsolicitedDropped(wpp.CommandID(999))
	c.DecodeFailed(errors.New("boom"))

	if got := testutil.ToFloat64(c.framesSent.WithLabelValues("Probe")); got != 2 {
		t.Fatalf("frames sent = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.bytesSent); got != 10 {
		t.Fatalf("bytes sent = %v, want 10", got)
	}
	if got := testutil.ToFloat64(c.framesReceived.WithLabelValues("BatteryStatus")); got != 1 {
		t.Fatalf("frames received = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.unsolicited.WithLabelValues("cmd999")); got != 1 {
		t.Fatalf("unsolicited = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.decodeFailures); got != 1 {
		t.Fatalf("decode failures = %v, want 1", got)
	}
}

func TestCollectorTransactionOutcomes(t *testing.T) {
	c := New(nil)

	c.TransactionDone(wpp.CmdFlashRead, 4, 20*time.Millisecond, nil)
	c.TransactionDone(wpp.CmdFlashRead, 0, time.Second, context.DeadlineExceeded)
	c.TransactionDone(wpp.CmdFlashRead, 1, time.Millisecond, &session.DeviceError{Command: wpp.CmdFlashRead, Code: 3})

	for _, outcome := range []string{"ok", "timeout", "device_error"} {
		if got := testutil.ToFloat64(c.transactions.WithLabelValues("FlashRead", outcome)); got != 1 {
			t.Fatalf("transactions{outcome=%q} = %v, want 1", outcome, got)
		}
	}
	if got := testutil.CollectAndCount(c.transactionFrames); got != 1 {
		t.Fatalf("expected one frames histogram series, got %d", got)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: "ok"},
		{err: fmt.Errorf("wrapped: %w", &session.DeviceError{Command: wpp.CmdProbe}), want: "device_error"},
		{err: &session.ConnectionLostError{}, want: "connection_lost"},
		{err: context.Canceled, want: "canceled"},
		{err: &wpp.TruncatedDataError{}, want: "decode_error"},
		{err: session.ErrBusy, want: "error"},
	}
	for _, tc := range tests {
		if got := Outcome(tc.err); got != tc.want {
			t.Fatalf("Outcome(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestAuthDone(t *testing.T) {
	c := New(nil)
	c.AuthDone(true, nil)
	c.AuthDone(false, nil)
	c.AuthDone(true, errors.New("mismatch"))

	for _, result := range []string{"challenged", "implicit", "failed"} {
		if got := testutil.ToFloat64(c.authentications.WithLabelValues(result)); got != 1 {
			t.Fatalf("handshakes{result=%q} = %v, want 1", result, got)
		}
	}
}

func TestWriteTextfile(t *testing.T) {
	c := New(nil)
	c.FrameSent(wpp.CmdBatteryPercent, 5)

	path := filepath.Join(t.TempDir(), "wpplink.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	// #nosec G304 -- path is created from t.TempDir() in this test.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(raw), `wpplink_session_frames_sent_total{command="BatteryPercent"} 1`) {
		t.Fatalf("textfile does not contain the sent frame counter:\n%s", raw)
	}
}
