package domain

import (
	"encoding/json"
	"testing"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"scan", " Guide ", "SELECT", "read"} {
		cmd, err := ParseCommand(input)
		if err != nil || !cmd.Valid() {
			t.Fatalf("ParseCommand(%q) = %q, %v", input, cmd, err)
		}
	}
	if _, err := ParseCommand("dance"); err == nil {
		t.Fatalf("expected unknown command error")
	}
}

func TestCommandsOrderAndModes(t *testing.T) {
	t.Parallel()

	got := Commands()
	want := []Command{CommandScan, CommandGuide, CommandSelect, CommandRead}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected command order: %v", got)
		}
	}
	if !CommandScan.SwitchesMode() || !CommandGuide.SwitchesMode() {
		t.Fatalf("SCAN and GUIDE switch modes")
	}
	if CommandSelect.SwitchesMode() || CommandRead.SwitchesMode() {
		t.Fatalf("SELECT and READ are one-shot actions")
	}
}

func TestReadyStateString(t *testing.T) {
	t.Parallel()

	cases := map[ReadyState]string{
		ReadyStateConnecting: "connecting",
		ReadyStateOpen:       "open",
		ReadyStateClosing:    "closing",
		ReadyStateClosed:     "closed",
		ReadyState(7):        "ReadyState(7)",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("String() = %q, want %q", got, want)
		}
	}
	if int(ReadyStateConnecting) != 0 || int(ReadyStateClosed) != 3 {
		t.Fatalf("ready state codes must match the websocket convention")
	}
}

func TestCommandEnvelopeWireFormat(t *testing.T) {
	t.Parallel()

	payload, err := json.Marshal(NewCommandEnvelope(CommandSelect))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(payload) != `{"type":"command","command":"SELECT"}` {
		t.Fatalf("unexpected envelope: %s", payload)
	}
}

func TestDecodeInbound(t *testing.T) {
	t.Parallel()

	msg, ok := DecodeInbound([]byte(`{"type":"frame","frame":"/9j/","mode":"SCAN","detections":[{"class":"person","confidence":0.87,"bbox":[10,20,30,40],"class_id":0}]}`))
	if !ok {
		t.Fatalf("expected frame to decode")
	}
	if msg.Mode != CommandScan || len(msg.Detections) != 1 || msg.Detections[0].Class != "person" || len(msg.Detections[0].BBox) != 4 {
		t.Fatalf("unexpected frame: %+v", msg)
	}

	msg, ok = DecodeInbound([]byte(`{"type":"tts","text":"Stairs ahead"}`))
	if !ok || msg.Text != "Stairs ahead" {
		t.Fatalf("unexpected tts message: %+v", msg)
	}

	for _, payload := range []string{`plain`, `{"text":"no type"}`, `[1,2]`} {
		if _, ok := DecodeInbound([]byte(payload)); ok {
			t.Fatalf("expected %q to be treated as opaque", payload)
		}
	}
}
