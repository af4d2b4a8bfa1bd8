// Package script turns the rtpsend script file into the sequence of
// BufferedPacket values the pacer transmits: Framer reassembles logical
// lines (spec §4.5, C5), and Dispatch classifies and parses each one
// into a wire-ready packet (spec §4.6, C6).
package script

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// MaxLineLen is the largest logical line (continuations concatenated)
// the framer accepts (spec §8 Boundaries).
const MaxLineLen = 4096

// ErrLineTooLong is returned when a logical line exceeds MaxLineLen.
var ErrLineTooLong = errors.New("script: logical line exceeds 4096 bytes")

// Framer reassembles one logical script line at a time from an
// io.ReadSeeker, honoring comments (`#`-prefixed lines, discarded) and
// continuation lines (any line starting with whitespace). It holds at
// most one raw line buffered, mirroring the C original's single
// held-back-line state (spec §9: "no process-wide globals" — this
// state lives in Framer, not a package-level variable).
type Framer struct {
	src  io.ReadSeeker
	br   *bufio.Reader
	loop bool

	held    string
	hasHeld bool
}

// New creates a Framer over src. When loop is true, EOF rewinds src
// and playback continues from the top of the file (spec §4.5 step 3);
// callers must pass loop=false for non-seekable sources such as stdin
// (spec §6: "looping disabled for stdin").
func New(src io.ReadSeeker, loop bool) *Framer {
	return &Framer{src: src, br: bufio.NewReader(src), loop: loop}
}

// Next returns the next logical line, or io.EOF when the script is
// exhausted and looping is disabled.
func (f *Framer) Next() (string, error) {
	var b strings.Builder
	started := false

	if f.hasHeld {
		b.WriteString(f.held)
		f.held = ""
		f.hasHeld = false
		started = true
	}

	for {
		line, err := f.readRawLine()
		if err != nil {
			if started {
				return b.String(), nil
			}
			if !f.loop {
				return "", io.EOF
			}
			if rerr := f.rewind(); rerr != nil {
				return "", rerr
			}
			continue
		}

		if strings.HasPrefix(line, "#") {
			continue
		}

		if started && len(line) > 0 && !isSpace(line[0]) {
			f.held = line
			f.hasHeld = true
			return b.String(), nil
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		started = true

		if b.Len() > MaxLineLen {
			return "", ErrLineTooLong
		}
	}
}

func (f *Framer) readRawLine() (string, error) {
	line, err := f.br.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if err != nil {
		// Partial last line with no trailing newline: still a real
		// line, report it without an error and let the next call see
		// EOF on an empty read.
		return line, nil
	}
	return line, nil
}

func (f *Framer) rewind() error {
	_, err := f.src.Seek(0, io.SeekStart)
	if err != nil {
		return err
	}
	f.br.Reset(f.src)
	f.held = ""
	f.hasHeld = false
	return nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\v' || c == '\f'
}
