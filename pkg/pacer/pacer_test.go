package pacer

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/columbia-irt/rtptools/pkg/script"
)

// fakeSender records every Send call for assertions; Send never fails.
type fakeSender struct {
	mu   sync.Mutex
	sent [][]byte
}

func (s *fakeSender) Send(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]byte(nil), b...)
	s.sent = append(s.sent, cp)
	return nil
}

func (s *fakeSender) Close() error { return nil }

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// newSyncPacer builds a Pacer whose timer is fired synchronously and
// whose clock never advances on its own, so Run completes
// deterministically without sleeping real wall-clock time.
func newSyncPacer(t *testing.T, content string, loop bool) (*Pacer, *fakeSender, *fakeSender) {
	t.Helper()
	framer := script.New(bytes.NewReader([]byte(content)), loop)
	data := &fakeSender{}
	ctrl := &fakeSender{}
	p := New(framer, [2]Sender{data, ctrl}, Config{})
	p.now = func() time.Time { return time.Unix(1000, 0) }
	p.arm = func(d time.Duration, cb func()) { cb() }
	return p, data, ctrl
}

func TestPacerSendsAllLines(t *testing.T) {
	p, data, _ := newSyncPacer(t, "0.0 RTP seq=1\n0.1 RTP seq=2\n0.2 RTP seq=3\n", false)
	if err := p.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := data.count(); got != 3 {
		t.Fatalf("data sends = %d, want 3", got)
	}
}

func TestPacerRoutesByKind(t *testing.T) {
	p, data, ctrl := newSyncPacer(t, "0.0 RTP seq=1\n0.1 RTCP (BYE (ssrc=0x1))\n", false)
	if err := p.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if data.count() != 1 {
		t.Fatalf("data sends = %d, want 1", data.count())
	}
	if ctrl.count() != 1 {
		t.Fatalf("control sends = %d, want 1", ctrl.count())
	}
}

func TestPacerFatalParseErrorStopsLoop(t *testing.T) {
	p, data, _ := newSyncPacer(t, "0.0 RTP seq=1\nbogus BOGUS x=1\n0.2 RTP seq=3\n", false)
	err := p.Run()
	if err == nil {
		t.Fatal("expected fatal parse error")
	}
	if got := data.count(); got != 1 {
		t.Fatalf("data sends = %d, want 1 (before the fatal line)", got)
	}
}

func TestPacerSkipsMalformedLineAndContinues(t *testing.T) {
	p, data, _ := newSyncPacer(t, "0.0 RTP seq=1\n0.1 RTP unknownkey=1\n0.2 RTP seq=3\n", false)
	if err := p.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := data.count(); got != 2 {
		t.Fatalf("data sends = %d, want 2 (malformed line skipped, not fatal)", got)
	}
}

func TestPacerVerboseCallback(t *testing.T) {
	framer := script.New(bytes.NewReader([]byte("0.0 RTP seq=1\n")), false)
	data := &fakeSender{}
	ctrl := &fakeSender{}
	var seen []script.BufferedPacket
	p := New(framer, [2]Sender{data, ctrl}, Config{
		Verbose: func(pkt script.BufferedPacket) { seen = append(seen, pkt) },
	})
	p.now = func() time.Time { return time.Unix(1000, 0) }
	p.arm = func(d time.Duration, cb func()) { cb() }

	if err := p.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("verbose callback fired %d times, want 1", len(seen))
	}
}

func TestPacerFirstPacketFiresImmediately(t *testing.T) {
	framer := script.New(bytes.NewReader([]byte("5.0 RTP seq=1\n")), false)
	data := &fakeSender{}
	ctrl := &fakeSender{}
	p := New(framer, [2]Sender{data, ctrl}, Config{})
	start := time.Unix(1000, 0)
	p.now = func() time.Time { return start }

	var armedDelay time.Duration
	var calls int
	p.arm = func(d time.Duration, cb func()) {
		calls++
		if calls == 1 {
			armedDelay = d
		}
		cb()
	}

	if err := p.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if armedDelay != 0 {
		t.Fatalf("first arm delay = %v, want 0 (base_offset absorbs script time)", armedDelay)
	}
}
