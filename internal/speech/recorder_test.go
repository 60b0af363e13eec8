package speech

import (
	"testing"
	"time"

	"assistctl/internal/ports"
)

type recorded struct {
	kind   string
	text   string
	final  bool
	code   string
	reason error
}

type recorder struct {
	events chan recorded
}

func newRecorder() *recorder {
	return &recorder{events: make(chan recorded, 32)}
}

func (r *recorder) handlers() ports.SpeechHandlers {
	return ports.SpeechHandlers{
		OnStart: func() { r.events <- recorded{kind: "start"} },
		OnEnd:   func() { r.events <- recorded{kind: "end"} },
		OnError: func(code string, err error) {
			r.events <- recorded{kind: "error", code: code, reason: err}
		},
		OnResult: func(result ports.SpeechResult) {
			r.events <- recorded{kind: "result", text: result.Transcript, final: result.Final}
		},
	}
}

func (r *recorder) next(t *testing.T) recorded {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for speech event")
		return recorded{}
	}
}

func (r *recorder) expect(t *testing.T, kind string) recorded {
	t.Helper()
	ev := r.next(t)
	if ev.kind != kind {
		t.Fatalf("expected %s event, got %+v", kind, ev)
	}
	return ev
}
