package script

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/columbia-irt/rtptools/pkg/rtcp"
	"github.com/columbia-irt/rtptools/pkg/rtp"
)

// SocketKind identifies which of the two adjacent UDP endpoints a
// packet goes out on (spec §3 "type ∈ {data=0, control=1}").
type SocketKind int

const (
	SocketData SocketKind = iota
	SocketControl
)

// BufferedPacket is the spec §3 "Buffered packet" data-model value: at
// most one exists at a time, owned by the parser until the pacer hands
// its Bytes to a Sender.
type BufferedPacket struct {
	Bytes      []byte
	Kind       SocketKind
	ScriptTime time.Duration
}

// ParseError wraps every error Dispatch returns. Fatal distinguishes
// spec §7's two classes: a bad time field, an unknown top-level type,
// and an rtcp.FatalError (an unrecognized RTCP record type or SDES item
// name) are "Fatal parse" and stop the pacer (cmd/rtpsend maps this to
// exit code 2); anything else — a malformed RTP token, a malformed RTCP
// subtree — is
// "Tolerated runtime": the pacer logs it and moves on to the next
// line.
type ParseError struct {
	Line  string
	Err   error
	Fatal bool
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("script: %v (line: %q)", e.Err, e.Line)
}

func (e *ParseError) Unwrap() error { return e.Err }

// WallClock is overridable for tests; production callers use time.Now.
var WallClock = time.Now

// Dispatch classifies and parses one logical script line into a
// BufferedPacket (spec §4.6, C6).
func Dispatch(line string) (BufferedPacket, error) {
	timeField, rest, ok := cutField(line)
	if !ok {
		return BufferedPacket{}, &ParseError{Line: line, Err: fmt.Errorf("missing time field"), Fatal: true}
	}
	scriptTime, err := parseScriptTime(timeField)
	if err != nil {
		return BufferedPacket{}, &ParseError{Line: line, Err: err, Fatal: true}
	}

	typeField, params, ok := cutField(rest)
	if !ok {
		typeField, params = rest, ""
	}

	switch typeField {
	case "RTP":
		bytes, err := rtp.ParseTokens(strings.Fields(params))
		if err != nil {
			// A malformed RTP token is not in spec §7's enumerated
			// fatal-parse list — tolerated runtime, not fatal.
			return BufferedPacket{}, &ParseError{Line: line, Err: err, Fatal: false}
		}
		return BufferedPacket{Bytes: bytes, Kind: SocketData, ScriptTime: scriptTime}, nil
	case "RTCP":
		tree := rtcp.Parse(params)
		bytes, err := rtcp.SerializeCompound(tree, WallClock)
		if err != nil {
			var fatal *rtcp.FatalError
			return BufferedPacket{}, &ParseError{Line: line, Err: err, Fatal: errors.As(err, &fatal)}
		}
		return BufferedPacket{Bytes: bytes, Kind: SocketControl, ScriptTime: scriptTime}, nil
	default:
		return BufferedPacket{}, &ParseError{Line: line, Err: fmt.Errorf("unknown line type %q", typeField), Fatal: true}
	}
}

// parseScriptTime parses the "%ld.%ld" seconds.microseconds field.
func parseScriptTime(s string) (time.Duration, error) {
	secStr, usecStr, ok := strings.Cut(s, ".")
	if !ok {
		secStr, usecStr = s, "0"
	}
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad seconds field %q: %w", secStr, err)
	}
	usec, err := strconv.ParseInt(usecStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad microseconds field %q: %w", usecStr, err)
	}
	return time.Duration(sec)*time.Second + time.Duration(usec)*time.Microsecond, nil
}

// cutField splits s at the first run of whitespace, returning the
// leading field and the (whitespace-trimmed) remainder.
func cutField(s string) (field, rest string, ok bool) {
	s = strings.TrimLeft(s, " \t\r\n")
	i := strings.IndexAny(s, " \t\r\n")
	if i < 0 {
		if s == "" {
			return "", "", false
		}
		return s, "", true
	}
	return s[:i], strings.TrimLeft(s[i:], " \t\r\n"), true
}
