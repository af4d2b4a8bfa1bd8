package rtcp

import (
	"fmt"
	"strconv"
	"time"
)

// RTCP packet types per RFC 3550 §6.1.
const (
	PTSR   uint8 = 200
	PTRR   uint8 = 201
	PTSDES uint8 = 202
	PTBYE  uint8 = 203
	PTAPP  uint8 = 204
)

// SDES item types per RFC 3550 §6.5.
var sdesItemTypes = map[string]uint8{
	"end":   0,
	"cname": 1,
	"name":  2,
	"email": 3,
	"phone": 4,
	"loc":   5,
	"tool":  6,
	"note":  7,
	"priv":  8,
}

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1 Jan 1900) and the Unix epoch (1 Jan 1970).
const ntpEpochOffset = 2208988800

type headerOverrides struct {
	padding      bool
	paddingSet   bool
	count        uint8
	countSet     bool
	length       uint16
	lengthSet    bool
}

func parseHeaderOverrides(list *Node) (headerOverrides, error) {
	var ov headerOverrides
	if n, ok := FindLeaf(list, "p"); ok {
		ov.paddingSet = true
		ov.padding = n.IsNum && n.Num != 0
	}
	if n, ok := FindLeaf(list, "count"); ok {
		if !n.IsNum {
			return ov, fmt.Errorf("rtcp: count= requires a numeric value")
		}
		ov.countSet = true
		ov.count = uint8(n.Num)
	}
	if n, ok := FindLeaf(list, "len"); ok {
		if !n.IsNum {
			return ov, fmt.Errorf("rtcp: len= requires a numeric value")
		}
		ov.lengthSet = true
		ov.length = uint16(n.Num)
	}
	return ov, nil
}

func buildHeader(pt uint8, computedCount uint8, bodyLen int, ov headerOverrides) []byte {
	count := computedCount
	if ov.countSet {
		count = ov.count
	}
	length := uint16((4+bodyLen)/4 - 1)
	if ov.lengthSet {
		length = ov.length
	}
	padding := ov.paddingSet && ov.padding

	b := make([]byte, 4)
	b[0] = 2<<6 | boolBit(padding)<<5 | (count & 0x1f)
	b[1] = pt
	putU16(b[2:4], length)
	return b
}

func numLeaf(list *Node, name string) uint64 {
	n, ok := FindLeaf(list, name)
	if !ok || !n.IsNum {
		return 0
	}
	return n.Num
}

// serializeReportBlock encodes one 24-byte RTCP reception report block
// (spec §4.4 "Report block").
func serializeReportBlock(block *Node) []byte {
	b := make([]byte, 24)
	putU32(b[0:4], uint32(numLeaf(block, "ssrc")))
	b[4] = uint8(numLeaf(block, "fraction"))
	putU24(b[5:8], uint32(numLeaf(block, "lost")))
	putU32(b[8:12], uint32(numLeaf(block, "last_seq")))
	putU32(b[12:16], uint32(numLeaf(block, "jit")))
	putU32(b[16:20], uint32(numLeaf(block, "lsr")))
	putU32(b[20:24], uint32(numLeaf(block, "dlsr")))
	return b
}

func serializeSR(rest *Node, wallClock func() time.Time) ([]byte, error) {
	ov, err := parseHeaderOverrides(rest)
	if err != nil {
		return nil, err
	}

	ntpMSW, ntpLSW := ntpNow(wallClock())
	if n, ok := FindLeaf(rest, "ntp"); ok && n.IsNum {
		// ntp= overrides only the high (seconds) half of the NTP
		// timestamp; the fractional half keeps tracking the wall
		// clock even when this is set.
		ntpMSW = uint32(n.Num)
	}

	body := make([]byte, 24)
	putU32(body[0:4], uint32(numLeaf(rest, "ssrc")))
	putU32(body[4:8], ntpMSW)
	putU32(body[8:12], ntpLSW)
	putU32(body[12:16], uint32(numLeaf(rest, "ts")))
	putU32(body[16:20], uint32(numLeaf(rest, "psent")))
	putU32(body[20:24], uint32(numLeaf(rest, "osent")))

	blocks := Groups(rest)
	for _, blk := range blocks {
		body = append(body, serializeReportBlock(blk.List)...)
	}

	return append(buildHeader(PTSR, uint8(len(blocks)), len(body), ov), body...), nil
}

func serializeRR(rest *Node) ([]byte, error) {
	ov, err := parseHeaderOverrides(rest)
	if err != nil {
		return nil, err
	}

	body := make([]byte, 4)
	putU32(body[0:4], uint32(numLeaf(rest, "ssrc")))

	blocks := Groups(rest)
	for _, blk := range blocks {
		body = append(body, serializeReportBlock(blk.List)...)
	}

	return append(buildHeader(PTRR, uint8(len(blocks)), len(body), ov), body...), nil
}

func serializeSDES(rest *Node) ([]byte, error) {
	ov, err := parseHeaderOverrides(rest)
	if err != nil {
		return nil, err
	}

	chunks := Groups(rest)
	var body []byte
	for _, chunk := range chunks {
		data, err := serializeSDESChunk(chunk.List)
		if err != nil {
			return nil, err
		}
		body = append(body, data...)
	}

	return append(buildHeader(PTSDES, uint8(len(chunks)), len(body), ov), body...), nil
}

func serializeSDESChunk(leaves *Node) ([]byte, error) {
	var ssrc uint32
	var items []byte

	for n := leaves; n != nil; n = n.Next {
		if n.List != nil {
			continue
		}
		if n.Type == "src" {
			ssrc = uint32(n.Num)
			continue
		}
		itemType, ok := sdesItemTypes[n.Type]
		if !ok {
			return nil, &FatalError{Err: fmt.Errorf("rtcp: unrecognized SDES item %q", n.Type)}
		}
		text := n.Str
		if n.IsNum {
			text = strconv.FormatUint(n.Num, 10)
		}
		if len(text) > 255 {
			return nil, fmt.Errorf("rtcp: SDES item %q text exceeds 255 bytes", n.Type)
		}
		items = append(items, itemType, uint8(len(text)))
		items = append(items, text...)
	}
	items = append(items, 0) // END item

	chunk := make([]byte, 4, 4+len(items))
	putU32(chunk[0:4], ssrc)
	chunk = append(chunk, items...)

	// Zero-pad to the next 32-bit boundary. Preserves the source
	// behavior of always emitting at least one padding byte even
	// when the chunk already lands on a word boundary (spec §8
	// scenario 4: a 1-byte cname still yields 4 trailing pad bytes).
	pad := 4 - len(chunk)%4
	chunk = append(chunk, make([]byte, pad)...)

	return chunk, nil
}

func serializeBYE(rest *Node) ([]byte, error) {
	ov, err := parseHeaderOverrides(rest)
	if err != nil {
		return nil, err
	}

	var ssrcs []uint32
	for n := rest; n != nil; n = n.Next {
		if n.List != nil {
			if leaf, ok := FindLeaf(n.List, "ssrc"); ok && leaf.IsNum {
				ssrcs = append(ssrcs, uint32(leaf.Num))
			}
			continue
		}
		if n.Type == "ssrc" && n.IsNum {
			ssrcs = append(ssrcs, uint32(n.Num))
		}
	}

	body := make([]byte, 4*len(ssrcs))
	for i, s := range ssrcs {
		putU32(body[4*i:4*i+4], s)
	}

	return append(buildHeader(PTBYE, uint8(len(ssrcs)), len(body), ov), body...), nil
}

func serializeAPP(rest *Node) ([]byte, error) {
	ov, err := parseHeaderOverrides(rest)
	if err != nil {
		return nil, err
	}
	// APP is accepted syntactically but serialized as a bare header —
	// spec §4.4 treats its body as a placeholder.
	return buildHeader(PTAPP, 0, 0, ov), nil
}

func ntpNow(t time.Time) (msw, lsw uint32) {
	sec := uint32(t.Unix()) + ntpEpochOffset
	usec := uint32(t.Nanosecond() / 1000)
	// 2^32 / 10^6 ≈ 4096 + 256 - 1825/32 (spec §4.4), max relative
	// error 3e-7.
	frac := usec<<12 + usec<<8 - (usec*1825)>>5
	return sec, frac
}

func boolBit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func putU24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
