package protocol

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// S2 (Publish decode).
func TestDecodePublishScenario(t *testing.T) {
	payload, err := hex.DecodeString("515d030080e6010002")
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}

	pub, err := DecodePublish(payload)
	if err != nil {
		t.Fatalf("DecodePublish: %v", err)
	}
	if pub.Item != ItemMechStatus {
		t.Fatalf("item = %v, want mechStatus", pub.Item)
	}

	want, _ := hex.DecodeString("5d030080e6010002")
	if !bytes.Equal(pub.Body, want) {
		t.Fatalf("body = %x, want %x", pub.Body, want)
	}
}

func TestDecodeNotifyDispatchesPublish(t *testing.T) {
	frame, _ := hex.DecodeString("08515d030080e6010002")
	pub, resp, err := DecodeNotify(frame)
	if err != nil {
		t.Fatalf("DecodeNotify: %v", err)
	}
	if resp != nil {
		t.Fatal("expected a publish, got a response")
	}
	if pub.Item != ItemMechStatus {
		t.Fatalf("item = %v, want mechStatus", pub.Item)
	}
}

// S3 (Response decode).
func TestDecodeResponseScenario(t *testing.T) {
	payload, err := hex.DecodeString("040205")
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}

	resp, err := DecodeResponse(payload)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if resp.Item != ItemHistory {
		t.Fatalf("item = %v, want history", resp.Item)
	}
	if resp.Op != OpRead {
		t.Fatalf("op = %v, want read", resp.Op)
	}
	if resp.Result != ResultNotFound {
		t.Fatalf("result = %v, want notFound", resp.Result)
	}
	if len(resp.Body) != 0 {
		t.Fatalf("body = %x, want empty", resp.Body)
	}
}

func TestDecodeNotifyDispatchesResponse(t *testing.T) {
	frame, _ := hex.DecodeString("07040205")
	pub, resp, err := DecodeNotify(frame)
	if err != nil {
		t.Fatalf("DecodeNotify: %v", err)
	}
	if pub != nil {
		t.Fatal("expected a response, got a publish")
	}
	if resp.Result != ResultNotFound {
		t.Fatalf("result = %v, want notFound", resp.Result)
	}
}

func TestEncodeCommand(t *testing.T) {
	got := EncodeCommand(OpAsync, ItemLock, []byte{0xaa, 0xbb})
	want := []byte{byte(OpAsync), byte(ItemLock), 0xaa, 0xbb}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestDecodeNotifyRejectsUnknownOp(t *testing.T) {
	if _, _, err := DecodeNotify([]byte{0xff}); err != ErrUnknownNotifyOp {
		t.Fatalf("err = %v, want ErrUnknownNotifyOp", err)
	}
}

func TestDecodeResponseRejectsTruncatedFrame(t *testing.T) {
	if _, err := DecodeResponse([]byte{0x01, 0x02}); err != ErrTruncatedFrame {
		t.Fatalf("err = %v, want ErrTruncatedFrame", err)
	}
}
