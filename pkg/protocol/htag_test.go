package protocol

import (
	"encoding/hex"
	"testing"
)

// S5 (History tag UTF-8 boundary).
func TestCreateHistoryTagUTF8Boundary(t *testing.T) {
	tag := CreateHistoryTag("適当な日本語で OK")

	if len(tag) != HistoryTagSize {
		t.Fatalf("len(tag) = %d, want %d", len(tag), HistoryTagSize)
	}

	want, err := hex.DecodeString("15e981a9e5bd93e381aae697a5e69cace8aa9ee381a7")
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if hex.EncodeToString(tag) != hex.EncodeToString(want) {
		t.Fatalf("tag = %x, want %x", tag, want)
	}

	if tag[0] != 0x15 {
		t.Fatalf("length byte = %#x, want 0x15", tag[0])
	}
}

func TestCreateHistoryTagShortASCII(t *testing.T) {
	tag := CreateHistoryTag("hi")
	if tag[0] != 2 {
		t.Fatalf("length byte = %d, want 2", tag[0])
	}
	if string(tag[1:3]) != "hi" {
		t.Fatalf("body = %q, want %q", tag[1:3], "hi")
	}
	for _, b := range tag[3:] {
		if b != 0 {
			t.Fatal("expected zero padding after body")
		}
	}
}

func TestCreateHistoryTagAlwaysFixedSize(t *testing.T) {
	cases := []string{
		"",
		"exactly 21 ascii chrs",
		"this string is definitely longer than twenty-one bytes",
	}
	for _, c := range cases {
		tag := CreateHistoryTag(c)
		if len(tag) != HistoryTagSize {
			t.Fatalf("%q: len(tag) = %d, want %d", c, len(tag), HistoryTagSize)
		}
		if int(tag[0]) > historyTagBodyMax {
			t.Fatalf("%q: length byte %d exceeds max body size", c, tag[0])
		}
	}
}
