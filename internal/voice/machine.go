package voice

import (
	"time"

	"assistctl/internal/domain"
	"assistctl/internal/keywords"
)

type eventKind int

const (
	eventEnable eventKind = iota
	eventDisable
	eventClose
	eventStarted
	eventEnded
	eventErrored
	eventResult
	eventStartFailed
	eventRestartDue
)

type event struct {
	kind       eventKind
	generation uint64
	token      uint64

	// available is the capability probe taken when enabling.
	available bool

	transcript string
	final      bool
	at         time.Time

	code string
	err  error
}

type effectKind int

const (
	effectOpenSession effectKind = iota
	effectRestartSession
	effectStopSession
	effectScheduleRestart
	effectCancelRestart
	effectEmitCommand
	effectReportUnsupported
	effectReportError
	effectNotifyStatus
)

type effect struct {
	kind       effectKind
	generation uint64
	token      uint64
	command    domain.Command
	code       string
	err        error
}

type policy struct {
	table    keywords.Table
	debounce time.Duration
	rewrite  Rewriter
}

func (p policy) clean(transcript string) string {
	if p.rewrite != nil {
		transcript = p.rewrite.Apply(transcript)
	}
	return keywords.Normalize(transcript)
}

type machine struct {
	state       domain.VoiceState
	enabled     bool
	unsupported bool
	closed      bool

	// generation identifies the current capture session; events from a
	// released session carry an older generation and are dropped.
	generation uint64
	hasSession bool

	restartToken   uint64
	restartPending bool

	transcript   string
	lastCommand  domain.Command
	lastAccepted time.Time
	accepted     bool
	errorCode    string
}

func newMachine() machine {
	return machine{state: domain.VoiceStateDisabled}
}

func (m machine) status() domain.VoiceStatus {
	return domain.VoiceStatus{
		State:       m.state,
		Enabled:     m.enabled,
		Listening:   m.state == domain.VoiceStateListening,
		Supported:   !m.unsupported,
		Transcript:  m.transcript,
		LastCommand: m.lastCommand,
		Error:       m.errorCode,
	}
}

func transition(m machine, ev event, p policy) (machine, []effect) {
	var effects []effect

	switch ev.kind {
	case eventEnable:
		if m.closed || m.unsupported {
			return m, nil
		}
		if !ev.available {
			m.unsupported = true
			m.enabled = true
			return m, []effect{{kind: effectReportUnsupported}, {kind: effectNotifyStatus}}
		}
		if m.enabled && (m.state == domain.VoiceStateStarting || m.state == domain.VoiceStateListening) {
			return m, nil
		}
		m.enabled = true
		m, effects = m.cancelRestart(effects)
		if m.hasSession {
			effects = append(effects, effect{kind: effectStopSession, generation: m.generation})
		}
		m.generation++
		m.hasSession = true
		m.state = domain.VoiceStateStarting
		m.errorCode = ""
		effects = append(effects,
			effect{kind: effectNotifyStatus},
			effect{kind: effectOpenSession, generation: m.generation},
		)
		return m, effects

	case eventDisable, eventClose:
		if ev.kind == eventClose {
			m.closed = true
		}
		wasEnabled := m.enabled
		m.enabled = false
		m, effects = m.cancelRestart(effects)
		if m.hasSession {
			effects = append(effects, effect{kind: effectStopSession, generation: m.generation})
			m.hasSession = false
			m.generation++
		}
		if m.state != domain.VoiceStateDisabled || wasEnabled {
			m.state = domain.VoiceStateDisabled
			effects = append(effects, effect{kind: effectNotifyStatus})
		}
		return m, effects

	case eventStarted:
		if !m.current(ev) || !m.enabled {
			return m, nil
		}
		if m.state == domain.VoiceStateListening {
			return m, nil
		}
		m.state = domain.VoiceStateListening
		return m, []effect{{kind: effectNotifyStatus}}

	case eventEnded:
		if !m.current(ev) {
			return m, nil
		}
		if !m.enabled {
			m.state = domain.VoiceStateDisabled
			return m, []effect{{kind: effectNotifyStatus}}
		}
		if m.state == domain.VoiceStateError {
			return m, nil
		}
		m.state = domain.VoiceStateStarting
		m, effects = m.cancelRestart(effects)
		m.restartToken++
		m.restartPending = true
		effects = append(effects,
			effect{kind: effectNotifyStatus},
			effect{kind: effectScheduleRestart, token: m.restartToken},
		)
		return m, effects

	case eventRestartDue:
		if !m.restartPending || ev.token != m.restartToken {
			return m, nil
		}
		m.restartPending = false
		if !m.enabled || !m.hasSession || m.state == domain.VoiceStateError {
			return m, nil
		}
		return m, []effect{{kind: effectRestartSession, generation: m.generation}}

	case eventErrored:
		if !m.current(ev) {
			return m, nil
		}
		if ev.code == domain.SpeechErrorNoSpeech {
			return m, nil
		}
		m, effects = m.cancelRestart(effects)
		m.state = domain.VoiceStateError
		m.errorCode = ev.code
		effects = append(effects,
			effect{kind: effectReportError, code: ev.code, err: ev.err},
			effect{kind: effectNotifyStatus},
		)
		return m, effects

	case eventStartFailed:
		if !m.current(ev) {
			return m, nil
		}
		m, effects = m.cancelRestart(effects)
		m.state = domain.VoiceStateError
		m.errorCode = "start-failed"
		effects = append(effects,
			effect{kind: effectReportError, code: m.errorCode, err: ev.err},
			effect{kind: effectNotifyStatus},
		)
		return m, effects

	case eventResult:
		if !m.current(ev) || !m.enabled || !ev.final {
			return m, nil
		}
		text := p.clean(ev.transcript)
		m.transcript = text

		cmd, ok := p.table.Resolve(text)
		if !ok || (m.accepted && ev.at.Sub(m.lastAccepted) < p.debounce) {
			return m, []effect{{kind: effectNotifyStatus}}
		}
		m.accepted = true
		m.lastAccepted = ev.at
		m.lastCommand = cmd
		return m, []effect{
			{kind: effectEmitCommand, command: cmd},
			{kind: effectNotifyStatus},
		}
	}

	return m, nil
}

func (m machine) current(ev event) bool {
	return m.hasSession && ev.generation == m.generation
}

func (m machine) cancelRestart(effects []effect) (machine, []effect) {
	if m.restartPending {
		m.restartPending = false
		effects = append(effects, effect{kind: effectCancelRestart})
	}
	return m, effects
}
