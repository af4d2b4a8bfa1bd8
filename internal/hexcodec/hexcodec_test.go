package hexcodec

import "testing"

func TestDecodeBasic(t *testing.T) {
	got := Decode("AA")
	if len(got) != 1 || got[0] != 0xAA {
		t.Fatalf("Decode(AA) = %x, want [aa]", got)
	}
}

func TestDecodeWhitespaceTolerant(t *testing.T) {
	got := Decode(" de AD\tBE\nEF ")
	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if string(got) != string(want) {
		t.Fatalf("Decode(...) = %x, want %x", got, want)
	}
}

func TestDecodeOddNibbleDropped(t *testing.T) {
	got := Decode("ABC")
	want := []byte{0xAB}
	if string(got) != string(want) {
		t.Fatalf("Decode(ABC) = %x, want %x", got, want)
	}
}

func TestDecodeIgnoresGarbage(t *testing.T) {
	got := Decode("A*B-C_D")
	want := []byte{0xAB, 0xCD}
	if string(got) != string(want) {
		t.Fatalf("Decode with garbage = %x, want %x", got, want)
	}
}

func TestRoundTripEvenLength(t *testing.T) {
	in := []byte{0x00, 0x01, 0xFF, 0x7A, 0xDE, 0xAD, 0xBE, 0xEF}
	got := Decode(Encode(in))
	if string(got) != string(in) {
		t.Fatalf("round trip = %x, want %x", got, in)
	}
}
