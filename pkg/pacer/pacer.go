// Package pacer drives the single-threaded cooperative playout loop:
// read one logical line, buffer the packet it produces, arm a one-shot
// timer for its script-relative playout time, and on the previous
// timer's fire hand the buffered packet to a Sender (spec §4.7, C7).
//
// The loop never runs two ticks concurrently: each tick either returns
// having armed exactly one future timer, or terminates the pacer. That
// gives the cooperative-scheduling guarantee of the original single
// process without needing a mutex around pacer state.
package pacer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/looplab/fsm"

	"github.com/columbia-irt/rtptools/pkg/metrics"
	"github.com/columbia-irt/rtptools/pkg/script"
)

// Sender is the C8 UDP egress boundary the pacer depends on. cmd/rtpsend
// constructs the two concrete connected-UDP senders (data, control);
// tests substitute an in-memory one.
type Sender interface {
	Send([]byte) error
	Close() error
}

// Config controls pacer behaviour beyond the Framer's own loop flag.
type Config struct {
	// Verbose, if set, is called with every BufferedPacket immediately
	// before it is sent (spec §6 -v: "echo a decoded summary of every
	// packet as it is sent").
	Verbose func(script.BufferedPacket)

	Metrics *metrics.Collector
}

// Pacer owns the script Framer, the two egress Senders, and the timer
// state described in spec §3 ("Pacer state"): base_offset, the single
// buffered packet, and first_packet.
type Pacer struct {
	framer  *script.Framer
	senders [2]Sender
	cfg     Config
	fsm     *fsm.FSM

	epoch       time.Time
	firstPacket bool
	pending     *script.BufferedPacket

	now func() time.Time
	arm func(d time.Duration, cb func())

	done chan struct{}
	err  error
}

// New builds a Pacer. senders must be indexed by script.SocketKind
// (senders[script.SocketData], senders[script.SocketControl]).
func New(framer *script.Framer, senders [2]Sender, cfg Config) *Pacer {
	p := &Pacer{
		framer:      framer,
		senders:     senders,
		cfg:         cfg,
		firstPacket: true,
		now:         time.Now,
	}
	p.arm = func(d time.Duration, cb func()) {
		time.AfterFunc(d, cb)
	}
	p.fsm = fsm.NewFSM(
		"idle",
		fsm.Events{
			{Name: "start", Src: []string{"idle"}, Dst: "running"},
			{Name: "finish", Src: []string{"running"}, Dst: "stopped"},
			{Name: "stop", Src: []string{"idle", "running"}, Dst: "stopped"},
		},
		fsm.Callbacks{},
	)
	return p
}

// Run drives the pacer to completion: until the script is exhausted
// without looping, a fatal parse error occurs (spec §7), or Stop is
// called. It blocks the calling goroutine; the tick chain itself runs
// on timer-callback goroutines, never more than one live at a time.
func (p *Pacer) Run() error {
	if err := p.fsm.Event(context.Background(), "start"); err != nil {
		return fmt.Errorf("pacer: %w", err)
	}
	p.done = make(chan struct{})
	p.tick()
	<-p.done
	return p.err
}

// Stop halts the pacer before the script is exhausted. Safe to call
// from another goroutine; idempotent.
func (p *Pacer) Stop() {
	if p.fsm.Current() != "running" {
		return
	}
	_ = p.fsm.Event(context.Background(), "stop")
	p.finish(nil)
}

func (p *Pacer) tick() {
	if p.fsm.Current() != "running" {
		return
	}

	if p.pending != nil {
		pkt := *p.pending
		p.pending = nil
		p.send(pkt)
	}

	line, err := p.framer.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			_ = p.fsm.Event(context.Background(), "finish")
			p.finish(nil)
			return
		}
		_ = p.fsm.Event(context.Background(), "finish")
		p.finish(fmt.Errorf("pacer: %w", err))
		return
	}

	pkt, err := script.Dispatch(line)
	if err != nil {
		var perr *script.ParseError
		if errors.As(err, &perr) && !perr.Fatal {
			// Tolerated runtime condition (spec §7): log and move on
			// without buffering a packet for this line.
			log.Printf("pacer: skipping malformed line %q: %v", line, err)
			p.arm(0, p.tick)
			return
		}
		_ = p.fsm.Event(context.Background(), "finish")
		p.finish(err)
		return
	}

	now := p.now()
	if p.firstPacket {
		p.epoch = now.Add(-pkt.ScriptTime)
		p.firstPacket = false
	}

	nextWall := p.epoch.Add(pkt.ScriptTime)
	p.pending = &pkt

	if nextWall.Before(now) {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.NonMonotonic.Inc()
		}
		log.Printf("pacer: script time %v is not after wall clock progress; sending immediately", pkt.ScriptTime)
		nextWall = now
	}

	p.arm(nextWall.Sub(now), p.tick)
}

func (p *Pacer) send(pkt script.BufferedPacket) {
	if p.cfg.Verbose != nil {
		p.cfg.Verbose(pkt)
	}

	s := p.senders[pkt.Kind]
	if s == nil {
		return
	}
	if err := s.Send(pkt.Bytes); err != nil {
		log.Printf("pacer: send failed: %v", err)
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.SendErrors.WithLabelValues(socketLabel(pkt.Kind)).Inc()
		}
		return
	}
	if p.cfg.Metrics != nil {
		label := socketLabel(pkt.Kind)
		p.cfg.Metrics.PacketsSent.WithLabelValues(label).Inc()
		p.cfg.Metrics.BytesSent.WithLabelValues(label).Add(float64(len(pkt.Bytes)))
		if pkt.Kind == script.SocketControl {
			p.cfg.Metrics.CompoundLength.Observe(float64(len(pkt.Bytes)))
		}
	}
}

func socketLabel(k script.SocketKind) string {
	if k == script.SocketControl {
		return "control"
	}
	return "data"
}

func (p *Pacer) finish(err error) {
	if p.pending != nil {
		pkt := *p.pending
		p.pending = nil
		p.send(pkt)
	}
	p.err = err
	close(p.done)
}
