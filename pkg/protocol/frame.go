package protocol

import "errors"

// ErrTruncatedFrame is returned when an inbound frame is shorter than its
// framing requires.
var ErrTruncatedFrame = errors.New("protocol: truncated frame")

// ErrUnknownNotifyOp is returned when a notification's leading byte is
// neither OpPublish nor OpResponse.
var ErrUnknownNotifyOp = errors.New("protocol: unexpected notify opcode")

// EncodeCommand builds an outbound command payload: op_code || item_code ||
// body. Encryption (if any) is applied by the caller afterward.
func EncodeCommand(op OpCode, item ItemCode, body []byte) []byte {
	out := make([]byte, 2+len(body))
	out[0] = byte(op)
	out[1] = byte(item)
	copy(out[2:], body)
	return out
}

// Publish is a decoded publish frame: an unsolicited item update pushed by
// the device (e.g. the initial session token, or a mechanical status
// change).
type Publish struct {
	Item ItemCode
	Body []byte
}

// Response is a decoded response frame: the device's reply to a
// previously sent command.
type Response struct {
	Item   ItemCode
	Op     OpCode
	Result ResultCode
	Body   []byte
}

// DecodeNotify reads the leading notify_op byte of a fully reassembled,
// decrypted inbound frame and dispatches to DecodePublish or
// DecodeResponse accordingly.
func DecodeNotify(frame []byte) (pub *Publish, resp *Response, err error) {
	if len(frame) < 1 {
		return nil, nil, ErrTruncatedFrame
	}

	switch OpCode(frame[0]) {
	case OpPublish:
		p, err := DecodePublish(frame[1:])
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	case OpResponse:
		r, err := DecodeResponse(frame[1:])
		if err != nil {
			return nil, nil, err
		}
		return nil, r, nil
	default:
		return nil, nil, ErrUnknownNotifyOp
	}
}

// DecodePublish decodes a publish frame's payload: item_code || body.
func DecodePublish(payload []byte) (*Publish, error) {
	if len(payload) < 1 {
		return nil, ErrTruncatedFrame
	}
	return &Publish{
		Item: ItemCode(payload[0]),
		Body: payload[1:],
	}, nil
}

// DecodeResponse decodes a response frame's payload: item_code || op_code
// || result_code || body.
func DecodeResponse(payload []byte) (*Response, error) {
	if len(payload) < 3 {
		return nil, ErrTruncatedFrame
	}
	return &Response{
		Item:   ItemCode(payload[0]),
		Op:     OpCode(payload[1]),
		Result: ResultCode(payload[2]),
		Body:   payload[3:],
	}, nil
}
