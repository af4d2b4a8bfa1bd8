package rtp

import (
	"bytes"
	"testing"
)

func TestScenario1DataPayload(t *testing.T) {
	tokens := []string{
		"v=2", "p=0", "x=0", "cc=0", "m=0", "pt=96",
		"seq=1", "ts=0", "ssrc=0x11223344", "data=AA",
	}
	got, err := ParseTokens(tokens)
	if err != nil {
		t.Fatalf("ParseTokens: %v", err)
	}
	want := []byte{0x80, 0x60, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x11, 0x22, 0x33, 0x44, 0xAA}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
	if len(got) != 13 {
		t.Fatalf("len = %d, want 13", len(got))
	}
}

func TestScenario2NoPayload(t *testing.T) {
	tokens := []string{"pt=0", "seq=0x1234", "ts=0xcafebabe", "ssrc=0x1"}
	got, err := ParseTokens(tokens)
	if err != nil {
		t.Fatalf("ParseTokens: %v", err)
	}
	want := []byte{0x80, 0x00, 0x12, 0x34, 0xCA, 0xFE, 0xBA, 0xBE, 0x00, 0x00, 0x00, 0x01}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
	if len(got) != 12 {
		t.Fatalf("len = %d, want 12", len(got))
	}
}

func TestDefaultVersionIsTwo(t *testing.T) {
	got, err := ParseTokens([]string{"seq=1"})
	if err != nil {
		t.Fatalf("ParseTokens: %v", err)
	}
	if got[0]>>6 != 2 {
		t.Fatalf("version = %d, want 2", got[0]>>6)
	}
}

func TestImplicitCSRCCount(t *testing.T) {
	got, err := ParseTokens([]string{"csrc2=0xaabbccdd"})
	if err != nil {
		t.Fatalf("ParseTokens: %v", err)
	}
	cc := got[0] & 0x0f
	if cc != 3 {
		t.Fatalf("cc = %d, want 3 (max index 2 + 1)", cc)
	}
	if len(got) != 12+4*3 {
		t.Fatalf("len = %d, want %d", len(got), 12+4*3)
	}
	// csrc0 and csrc1 default to zero, csrc2 carries the given value.
	if !bytes.Equal(got[20:24], []byte{0xaa, 0xbb, 0xcc, 0xdd}) {
		t.Fatalf("csrc2 slot = % x", got[20:24])
	}
}

func TestExplicitCCOverridesImplicitRaise(t *testing.T) {
	got, err := ParseTokens([]string{"cc=1", "csrc5=0x1"})
	if err != nil {
		t.Fatalf("ParseTokens: %v", err)
	}
	cc := got[0] & 0x0f
	if cc != 1 {
		t.Fatalf("cc = %d, want 1 (explicit cc wins)", cc)
	}
}

func TestCSRCOutOfRangeTruncated(t *testing.T) {
	got, err := ParseTokens([]string{"csrc16=0x1"})
	if err != nil {
		t.Fatalf("ParseTokens: %v", err)
	}
	cc := got[0] & 0x0f
	if cc != 0 {
		t.Fatalf("cc = %d, want 0 (index 16 out of range)", cc)
	}
}

func TestExtensionHeaderAndData(t *testing.T) {
	tokens := []string{"cc=0", "ext_type=0x1234", "ext_len=1", "ext_data=DEADBEEF"}
	got, err := ParseTokens(tokens)
	if err != nil {
		t.Fatalf("ParseTokens: %v", err)
	}
	if len(got) != 12+4+4 {
		t.Fatalf("len = %d, want %d", len(got), 20)
	}
	if !bytes.Equal(got[12:14], []byte{0x12, 0x34}) {
		t.Fatalf("ext_type = % x", got[12:14])
	}
	if !bytes.Equal(got[14:16], []byte{0x00, 0x01}) {
		t.Fatalf("ext_len = % x", got[14:16])
	}
	if !bytes.Equal(got[16:20], []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Fatalf("ext_data = % x", got[16:20])
	}
}

func TestLenOverrideTruncates(t *testing.T) {
	got, err := ParseTokens([]string{"data=AABBCCDD", "len=12"})
	if err != nil {
		t.Fatalf("ParseTokens: %v", err)
	}
	if len(got) != 12 {
		t.Fatalf("len = %d, want 12", len(got))
	}
}

func TestLenOverridePads(t *testing.T) {
	got, err := ParseTokens([]string{"len=20"})
	if err != nil {
		t.Fatalf("ParseTokens: %v", err)
	}
	if len(got) != 20 {
		t.Fatalf("len = %d, want 20", len(got))
	}
}

func TestUnknownKeyIsParseError(t *testing.T) {
	_, err := ParseTokens([]string{"bogus=1"})
	if err == nil {
		t.Fatal("expected error for unrecognized key")
	}
	var pe *ParseError
	if !isParseError(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
}

func isParseError(err error, target **ParseError) bool {
	pe, ok := err.(*ParseError)
	if ok {
		*target = pe
	}
	return ok
}
