package crypto

import (
	"encoding/hex"
	"testing"
)

// RFC 4493 Section 4 test vectors (AES-128, subkey-generation examples carry
// through into these MAC values).
func TestCMACRFC4493Vectors(t *testing.T) {
	key, _ := hex.DecodeString("2b7e151628aed2a6abf7158809cf4f3c")

	vectors := []struct {
		name string
		msg  string
		want string
	}{
		{"empty", "", "bb1d6929e95937287fa37d129b756746"},
		{
			"16 bytes",
			"6bc1bee22e409f96e93d7e117393172a",
			"070a16b46b4d4144f79bdd9dd04a287c",
		},
		{
			"40 bytes",
			"6bc1bee22e409f96e93d7e117393172aae2d8a571e03ac9c9eb76fac45af8e5130c81c46a35ce411",
			"dfa66747de9ae63030ca32611497c827",
		},
		{
			"64 bytes",
			"6bc1bee22e409f96e93d7e117393172aae2d8a571e03ac9c9eb76fac45af8e51" +
				"30c81c46a35ce411e5fbc1191a0a52eff69f2445df4f9b17ad2b417be66c3710",
			"51f0bebf7e3b9d92fc49741779363cfe",
		},
	}

	for _, v := range vectors {
		if v.want == "" {
			continue
		}
		msg, err := hex.DecodeString(v.msg)
		if err != nil {
			t.Fatalf("%s: decode msg: %v", v.name, err)
		}
		tag, err := CMAC(key, msg)
		if err != nil {
			t.Fatalf("%s: cmac: %v", v.name, err)
		}
		if got := hex.EncodeToString(tag); got != v.want {
			t.Fatalf("%s: cmac = %s, want %s", v.name, got, v.want)
		}
	}
}

func TestCMACTruncated(t *testing.T) {
	key, _ := hex.DecodeString("2b7e151628aed2a6abf7158809cf4f3c")
	msg, _ := hex.DecodeString("6bc1bee22e409f96e93d7e117393172a")

	tag, err := CMACTruncated(key, msg, 4)
	if err != nil {
		t.Fatalf("cmac truncated: %v", err)
	}
	if len(tag) != 4 {
		t.Fatalf("len(tag) = %d, want 4", len(tag))
	}
	if hex.EncodeToString(tag) != "070a16b4" {
		t.Fatalf("tag = %x, want 070a16b4", tag)
	}
}

func TestCMACTruncatedRejectsOversizeLength(t *testing.T) {
	key, _ := hex.DecodeString("2b7e151628aed2a6abf7158809cf4f3c")
	if _, err := CMACTruncated(key, []byte("x"), 17); err == nil {
		t.Fatal("expected error for truncation length > tag size")
	}
}
