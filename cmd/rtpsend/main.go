// Command rtpsend plays back a textual RTP/RTCP script onto two
// adjacent UDP ports at the wall-clock times the script encodes.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"

	pionrtp "github.com/pion/rtp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/columbia-irt/rtptools/internal/sockopt"
	"github.com/columbia-irt/rtptools/pkg/metrics"
	"github.com/columbia-irt/rtptools/pkg/pacer"
	"github.com/columbia-irt/rtptools/pkg/script"
)

// exitError carries the process exit code a failure should produce,
// distinguishing setup failures (1) from protocol failures (2) per the
// CLI's documented exit-code contract.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Print(err)
		if ee, ok := err.(*exitError); ok {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("rtpsend", flag.ContinueOnError)
	var (
		scriptFile  = fs.String("f", "", "script file (default: stdin)")
		routerAlrt  = fs.Bool("a", false, "enable IP router-alert option")
		loop        = fs.Bool("l", false, "loop file on EOF")
		srcPort     = fs.Int("s", 0, "bind local source ports to PORT (data) and PORT+1 (control)")
		verbose     = fs.Bool("v", false, "print a one-line packet summary to stdout before sending (the script line itself is not echoed)")
		metricsAddr = fs.String("metrics-addr", "", "serve Prometheus /metrics on this address (default: disabled)")
	)
	if err := fs.Parse(args); err != nil {
		return &exitError{code: 1, err: err}
	}
	if fs.NArg() != 1 {
		return &exitError{code: 1, err: fmt.Errorf("usage: rtpsend [-alv] [-f file] [-s port] address/port[/ttl]")}
	}

	dest, err := parseDestination(fs.Arg(0))
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	var src io.ReadSeeker
	looping := *loop
	if *scriptFile != "" {
		f, err := os.Open(*scriptFile)
		if err != nil {
			return &exitError{code: 1, err: fmt.Errorf("open script: %w", err)}
		}
		defer f.Close()
		src = f
	} else {
		buf, err := io.ReadAll(os.Stdin)
		if err != nil {
			return &exitError{code: 1, err: fmt.Errorf("read stdin: %w", err)}
		}
		src = strings.NewReader(string(buf))
		looping = false
	}

	dataSender, err := newUDPSender(dest.host, dest.port, *srcPort, *routerAlrt, dest.ttl)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("data socket: %w", err)}
	}
	defer dataSender.Close()

	ctrlSrcPort := 0
	if *srcPort != 0 {
		ctrlSrcPort = *srcPort + 1
	}
	ctrlSender, err := newUDPSender(dest.host, dest.port+1, ctrlSrcPort, *routerAlrt, dest.ttl)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("control socket: %w", err)}
	}
	defer ctrlSender.Close()

	collector := metrics.New(prometheus.DefaultRegisterer)
	if *metricsAddr != "" {
		if err := collector.ServeHTTP(*metricsAddr); err != nil {
			return &exitError{code: 1, err: fmt.Errorf("metrics listen: %w", err)}
		}
		defer collector.Shutdown(context.Background())
	}

	cfg := pacer.Config{Metrics: collector}
	if *verbose {
		cfg.Verbose = func(pkt script.BufferedPacket) {
			echoPacket(pkt)
		}
	}

	framer := script.New(src, looping)
	senders := [2]pacer.Sender{dataSender, ctrlSender}
	p := pacer.New(framer, senders, cfg)

	if err := p.Run(); err != nil {
		return &exitError{code: 2, err: err}
	}
	return nil
}

// echoPacket prints a one-line summary of an outgoing packet; RTP
// packets are independently re-decoded with pion/rtp so the echoed
// summary is never just a reflection of our own serializer.
func echoPacket(pkt script.BufferedPacket) {
	if pkt.Kind == script.SocketControl {
		fmt.Printf("%-10s rtcp  %3d bytes\n", pkt.ScriptTime, len(pkt.Bytes))
		return
	}
	var p pionrtp.Packet
	if err := p.Unmarshal(pkt.Bytes); err != nil {
		fmt.Printf("%-10s rtp   %3d bytes (undecodable: %v)\n", pkt.ScriptTime, len(pkt.Bytes), err)
		return
	}
	fmt.Printf("%-10s rtp   %3d bytes pt=%d seq=%d ts=%d ssrc=0x%08x\n",
		pkt.ScriptTime, len(pkt.Bytes), p.PayloadType, p.SequenceNumber, p.Timestamp, p.SSRC)
}

type destination struct {
	host string
	port int
	ttl  int
}

// parseDestination parses "host/port[/ttl]" per spec §6. TTL defaults
// to 16 when omitted.
func parseDestination(s string) (destination, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 || len(parts) > 3 {
		return destination{}, fmt.Errorf("bad destination %q: want host/port[/ttl]", s)
	}
	host := parts[0]
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return destination{}, fmt.Errorf("bad port in %q: %w", s, err)
	}
	ttl := 16
	if len(parts) == 3 {
		ttl, err = strconv.Atoi(parts[2])
		if err != nil {
			return destination{}, fmt.Errorf("bad ttl in %q: %w", s, err)
		}
	}
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return destination{host: host, port: port, ttl: ttl}, nil
}

// udpSender is the C8 concrete Sender: a connected UDP socket.
type udpSender struct {
	conn *net.UDPConn
}

func newUDPSender(host string, port, localPort int, routerAlert bool, ttl int) (*udpSender, error) {
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s:%d: %w", host, port, err)
	}

	var laddr *net.UDPAddr
	if localPort != 0 {
		laddr = &net.UDPAddr{Port: localPort}
	}

	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s:%d: %w", host, port, err)
	}

	if err := applySockopts(conn, routerAlert, ttl); err != nil {
		conn.Close()
		return nil, err
	}

	return &udpSender{conn: conn}, nil
}

func applySockopts(conn *net.UDPConn, routerAlert bool, ttl int) error {
	rc, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("syscall conn: %w", err)
	}

	err = rc.Control(func(fd uintptr) {
		if routerAlert {
			if e := sockopt.RouterAlert(int(fd)); e != nil {
				log.Printf("rtpsend: router-alert unsupported: %v", e)
			}
		}
		// Harmless when the destination turns out to be unicast; the
		// option is simply ignored by the kernel in that case.
		if e := sockopt.MulticastTTL(int(fd), ttl); e != nil {
			log.Printf("rtpsend: multicast ttl unsupported: %v", e)
		}
	})
	if err != nil {
		return fmt.Errorf("control fd: %w", err)
	}
	return nil
}

func (s *udpSender) Send(b []byte) error {
	_, err := s.conn.Write(b)
	return err
}

func (s *udpSender) Close() error {
	return s.conn.Close()
}
