package device

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"wpplink/internal/auth"
	"wpplink/internal/session"
	"wpplink/internal/wpp"
)

const simAddress = "00:24:e4:11:22:33"

// simWatch answers requests the way a ScanWatch does and feeds the encoded
// replies back into the engine in small notification chunks.
type simWatch struct {
	t      *testing.T
	reg    *wpp.Registry
	engine *session.Engine
	secret []byte
	flash  []byte
	dumps  []Dump
	// chunkLimit caps the flash chunks returned, to simulate short reads
	chunkLimit int
	silent     map[wpp.CommandID]bool

	mu     sync.Mutex
	masks  []wpp.DebugMask
	swim   []bool
	acked  bool
	served []wpp.CommandID
}

func newSim(t *testing.T, secret string) (*simWatch, *session.Engine) {
	t.Helper()
	reg := wpp.DefaultRegistry()
	sim := &simWatch{t: t, reg: reg, secret: []byte(secret)}
	eng := session.NewEngine(reg, sim, session.Options{Logger: quietLogger()})
	sim.engine = eng
	return sim, eng
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *simWatch) Write(_ context.Context, p []byte) error {
	req, err := s.reg.DecodeFrame(p)
	if err != nil {
		s.t.Errorf("watch could not decode request: %v", err)
		return err
	}
	s.mu.Lock()
	s.served = append(s.served, req.Command)
	silent := s.silent[req.Command]
	s.mu.Unlock()
	if silent {
		return nil
	}

	var raw []byte
	for _, f := range s.reply(req) {
		b, err := s.reg.EncodeFrame(f)
		if err != nil {
			s.t.Errorf("watch could not encode %s: %v", f, err)
			return err
		}
		raw = append(raw, b...)
	}
	for len(raw) > 0 {
		n := min(7, len(raw))
		s.engine.OnNotify(raw[:n])
		raw = raw[n:]
	}
	return nil
}

func (s *simWatch) frame(id wpp.CommandID) *wpp.Frame {
	f, err := s.reg.NewFrame(id)
	if err != nil {
		s.t.Fatalf("new frame: %v", err)
	}
	return f
}

func (s *simWatch) must(err error) {
	if err != nil {
		s.t.Errorf("watch: %v", err)
	}
}

func (s *simWatch) done(id wpp.CommandID) *wpp.Frame {
	f := s.frame(id)
	s.must(f.Set("null", wpp.NewValue(wpp.TypeNull)))
	return f
}

func (s *simWatch) reply(req *wpp.Frame) []*wpp.Frame {
	switch req.Command {
	case wpp.CmdProbe:
		f := s.frame(wpp.CmdProbeChallenge)
		s.must(f.Set("challenge", wpp.NewValue(wpp.TypeProbeChallenge).
			Set("mac", simAddress).
			Set("challenge", bytes.Repeat([]byte{0x5A}, wpp.NonceSize))))
		return []*wpp.Frame{f}

	case wpp.CmdProbeChallenge:
		host := req.Get("challenge")
		f := s.frame(wpp.CmdProbe)
		s.must(f.Set("response", wpp.NewValue(wpp.TypeProbeChallengeResponse).
			Set("answer", auth.ComputeResponse(host.Bytes("challenge"), host.Text("mac"), s.secret))))
		s.must(f.Set("reply", wpp.NewValue(wpp.TypeProbeReply).
			Set("vid", 0).Set("pid", 0).Set("name", "ScanWatch").Set("mac", simAddress).
			Set("secret", "").Set("hard_version", 16777215).Set("mfg_id", "001F0080").
			Set("bl_version", 6).Set("soft_version", 2741).Set("rescue_version", 16777215)))
		s.must(f.Set("factory_state", wpp.NewValue(wpp.TypeFactoryState).Set("value", 0)))
		return []*wpp.Frame{f}

	case wpp.CmdTrackerUserGet:
		f := s.frame(wpp.CmdTrackerUserGet)
		s.must(f.Set("user", wpp.NewValue(wpp.TypeTrackerUser).
			Set("uid", 4242).Set("weight_g", 72500).Set("height_cm", 181).Set("gender", 0).
			Set("birth", time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)).Set("first_name", "Alex")))
		return []*wpp.Frame{f}

	case wpp.CmdBatteryStatus:
		f := s.frame(wpp.CmdBatteryStatus)
		s.must(f.Set("status", wpp.NewValue(wpp.TypeBatteryStatus).
			Set("percent", 87).Set("state", 1).Set("mv", 4012).Set("reserved", 0)))
		return []*wpp.Frame{f}

	case wpp.CmdBatteryPercent:
		f := s.frame(wpp.CmdBatteryPercent)
		s.must(f.Set("percent", wpp.NewValue(wpp.TypeBatteryPercent).Set("percent", 87)))
		s.must(f.Set("voltage", wpp.NewValue(wpp.TypeBatteryVoltage).Set("mv", 4012)))
		return []*wpp.Frame{f}

	case wpp.CmdSwimStatusSet:
		s.mu.Lock()
		s.swim = append(s.swim, req.Get("status").Int("enabled") == 1)
		s.mu.Unlock()
		return []*wpp.Frame{s.done(wpp.CmdSwimStatusSet)}

	case wpp.CmdDebugSet:
		s.mu.Lock()
		s.masks = append(s.masks, wpp.DebugMask(req.Get("mask").Uint32("mask")))
		s.mu.Unlock()
		return []*wpp.Frame{s.done(wpp.CmdDebugSet)}

	case wpp.CmdFlashRead:
		return s.flashReply(req.Get("cmd"))

	case wpp.CmdDebugDump:
		return s.dumpReply(req.Get("anchor").Uint32("value"))

	case wpp.CmdDebugDumpAck:
		s.mu.Lock()
		s.acked = true
		s.mu.Unlock()
		return []*wpp.Frame{s.done(wpp.CmdDebugDumpAck)}

	case wpp.CmdDisconnect:
		return []*wpp.Frame{s.done(wpp.CmdDisconnect)}
	}

	f := s.frame(wpp.CmdError)
	s.must(f.Set("error", wpp.NewValue(wpp.TypeCmdError).Set("cmd", uint16(req.Command)).Set("err", wpp.ErrCodeCmdUnknown)))
	return []*wpp.Frame{f}
}

func (s *simWatch) flashReply(cmd *wpp.Value) []*wpp.Frame {
	addr, length := int(cmd.Uint32("addr")), int(cmd.Uint32("len"))
	n := (length + wpp.FlashChunkSize - 1) / wpp.FlashChunkSize
	if s.chunkLimit > 0 && n > s.chunkLimit {
		n = s.chunkLimit
	}

	var out []*wpp.Frame
	cur := s.frame(wpp.CmdFlashRead)
	for i := 0; i < n; i++ {
		chunk := make([]byte, wpp.FlashChunkSize)
		copy(chunk, s.flash[min(addr+i*wpp.FlashChunkSize, len(s.flash)):])
		s.must(cur.Append("chunks", wpp.NewValue(wpp.TypeSpiFlashChunk).Set("data", chunk)))
		if len(cur.List("chunks")) == 3 {
			out = append(out, cur)
			cur = s.frame(wpp.CmdFlashRead)
		}
	}
	s.must(cur.Set("null", wpp.NewValue(wpp.TypeNull)))
	return append(out, cur)
}

func (s *simWatch) dumpReply(anchor uint32) []*wpp.Frame {
	if int(anchor) >= len(s.dumps) {
		return []*wpp.Frame{s.done(wpp.CmdDebugDump)}
	}
	d := s.dumps[anchor]

	head := s.frame(wpp.CmdDebugDump)
	s.must(head.Set("type", wpp.NewValue(wpp.TypeDebugDumpType).Set("type", d.Type).Set("size", d.Size)))
	out := []*wpp.Frame{head}
	for off := 0; off < len(d.Data); off += 8 {
		f := s.frame(wpp.CmdDebugDump)
		s.must(f.Append("data", wpp.NewValue(wpp.TypeDebugDumpData).Set("buf", d.Data[off:min(off+8, len(d.Data))])))
		out = append(out, f)
	}
	tail := s.done(wpp.CmdDebugDump)
	if int(anchor)+1 < len(s.dumps) {
		s.must(tail.Set("anchor", wpp.NewValue(wpp.TypeDebugDumpAnchor).Set("value", anchor+1)))
	}
	return append(out, tail)
}
