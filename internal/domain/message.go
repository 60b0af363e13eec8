package domain

import "encoding/json"

// Inbound message types sent by the remote controller.
const (
	MessageTypeTTS       = "tts"
	MessageTypeOCRResult = "ocr_result"
	MessageTypeFrame     = "frame"
)

// Detection is one object reported in a frame message.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       []int   `json:"bbox"`
	ClassID    int     `json:"class_id"`
}

// InboundMessage is the loosely typed view of a controller message. Only
// the fields the console renders are decoded.
type InboundMessage struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	Mode       Command     `json:"mode,omitempty"`
	Frame      string      `json:"frame,omitempty"`
	Detections []Detection `json:"detections,omitempty"`
}

// DecodeInbound parses a controller payload. The second return is false
// when the payload is not a JSON object with a type field.
func DecodeInbound(payload []byte) (InboundMessage, bool) {
	var msg InboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return InboundMessage{}, false
	}
	if msg.Type == "" {
		return InboundMessage{}, false
	}
	return msg, true
}
