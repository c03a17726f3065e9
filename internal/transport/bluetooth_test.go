package transport

import (
	"fmt"
	"runtime"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestParseBluetoothAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid upper", input: "00:24:E4:11:22:33"},
		{name: "valid lower", input: "00:24:e4:11:22:33"},
		{name: "empty", input: "   ", wantErr: true},
		{name: "invalid", input: "not-a-mac", wantErr: true},
	}

	for _, tc := range tests {
		_, err := parseBluetoothAddress(tc.input)
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestShouldRetryBluetoothConnectWithDiscovery(t *testing.T) {
	err := dbus.NewError("org.freedesktop.DBus.Error.UnknownMethod", []interface{}{
		`Method "Get" with signature "ss" on interface "org.freedesktop.DBus.Properties" doesn't exist`,
	})
	got := shouldRetryBluetoothConnectWithDiscovery(fmt.Errorf("wrapped: %w", err))
	want := runtime.GOOS == "linux"
	if got != want {
		t.Fatalf("unexpected retry decision: got=%v want=%v", got, want)
	}
	if shouldRetryBluetoothConnectWithDiscovery(testErr("le-connection-abort-by-local")) {
		t.Fatalf("unrelated errors must not trigger discovery")
	}
}

type recordingReceiver struct {
	mu          sync.Mutex
	chunks      [][]byte
	disconnects []error
	gone        chan struct{}
}

func newRecordingReceiver() *recordingReceiver {
	return &recordingReceiver{gone: make(chan struct{}, 4)}
}

func (r *recordingReceiver) OnNotify(chunk []byte) {
	r.mu.Lock()
	r.chunks = append(r.chunks, chunk)
	r.mu.Unlock()
}

func (r *recordingReceiver) OnDisconnect(err error) {
	r.mu.Lock()
	r.disconnects = append(r.disconnects, err)
	r.mu.Unlock()
	r.gone <- struct{}{}
}

func (r *recordingReceiver) received() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []byte
	for _, c := range r.chunks {
		out = append(out, c...)
	}
	return out
}

func TestBluetoothConnStateNotifyCopiesAndStopsAfterClose(t *testing.T) {
	rx := newRecordingReceiver()
	state := &bluetoothConnState{rx: rx, closed: make(chan struct{})}

	buf := []byte{0x01, 0x01, 0x01}
	state.onNotify(buf)
	buf[0] = 0xFF

	if !state.markClosed() {
		t.Fatalf("first close must report true")
	}
	if state.markClosed() {
		t.Fatalf("second close must report false")
	}
	state.onNotify([]byte{0x02})

	if got := rx.received(); len(got) != 3 || got[0] != 0x01 {
		t.Fatalf("unexpected received bytes %x", got)
	}
}

func TestBluetoothTransportFailReportsOnce(t *testing.T) {
	rx := newRecordingReceiver()
	state := &bluetoothConnState{rx: rx, closed: make(chan struct{})}
	tr := &BluetoothTransport{conn: state}

	tr.fail(state, testErr("link loss"))
	tr.fail(state, testErr("again"))

	if len(rx.disconnects) != 1 || rx.disconnects[0].Error() != "link loss" {
		t.Fatalf("unexpected disconnects %v", rx.disconnects)
	}
	if _, err := tr.currentState(); err != ErrNotConnected {
		t.Fatalf("expected the failed connection to be dropped, got %v", err)
	}
}

type testErr string

func (e testErr) Error() string {
	return string(e)
}
