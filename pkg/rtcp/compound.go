package rtcp

import (
	"fmt"
	"time"
)

// FatalError marks an unrecognized record type name (the first leaf of
// a record group) or an unrecognized SDES item name inside a chunk.
// Other unrecognized leaves (in SR/RR/BYE/APP bodies, report blocks, or
// at the SDES record level) are ignored and do not produce an error.
// Other serialization failures (a non-numeric count= or len=, SDES item
// text over 255 bytes) are returned as plain, non-fatal errors. A
// top-level node that is not a record group is skipped without an error
// and the rest of the compound packet is still assembled.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// SerializeCompound walks the top-level sibling list produced by Parse
// and emits the concatenated compound RTCP packet (spec §4.4): each
// top-level node must be an inner group whose first child names the
// record type.
//
// wallClock supplies the current time for SR's NTP auto-population
// (spec §4.4); pass time.Now in production, a fixed clock in tests.
func SerializeCompound(top *Node, wallClock func() time.Time) ([]byte, error) {
	var out []byte
	for n := top; n != nil; n = n.Next {
		if n.List == nil {
			// Malformed top-level shape: not a record group at all.
			// Spec §7 treats a malformed RTCP subtree as tolerated
			// runtime, not fatal — skip it and keep assembling the
			// rest of the compound packet rather than aborting.
			continue
		}
		data, err := serializeRecord(n.List.Type, n.List.Next, wallClock)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	return out, nil
}

func serializeRecord(name string, rest *Node, wallClock func() time.Time) ([]byte, error) {
	switch name {
	case "SDES":
		return serializeSDES(rest)
	case "SR":
		return serializeSR(rest, wallClock)
	case "RR":
		return serializeRR(rest)
	case "BYE":
		return serializeBYE(rest)
	case "APP":
		return serializeAPP(rest)
	default:
		return nil, &FatalError{Err: fmt.Errorf("rtcp: unrecognized record type %q", name)}
	}
}
