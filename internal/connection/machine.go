package connection

import "assistctl/internal/domain"

type eventKind int

const (
	eventConnect eventKind = iota
	eventConstructionFailed
	eventOpened
	eventMessage
	eventErrored
	eventClosed
	eventRetryDue
	eventTeardown
)

// event is an input to the connection state machine. Transport events carry
// the generation of the connection that produced them; retry events carry
// the token of the timer that fired.
type event struct {
	kind       eventKind
	url        string
	generation uint64
	token      uint64
	payload    []byte
	err        error
	close      domain.CloseInfo
}

type effectKind int

const (
	effectOpen effectKind = iota
	effectRelease
	effectCloseConn
	effectCancelRetry
	effectScheduleRetry
	effectStoreMessage
	effectNotifyState
	effectNotifyOpen
	effectNotifyMessage
	effectNotifyError
	effectNotifyClose
)

type effect struct {
	kind       effectKind
	generation uint64
	token      uint64
	payload    []byte
	err        error
	close      domain.CloseInfo
}

// machine is the connection state. It is a value so transitions stay pure.
type machine struct {
	ready domain.ReadyState
	url   string

	// generation identifies the current connection attempt. Events from
	// any other generation belong to a released connection and are dropped.
	generation uint64
	connected  bool

	retryToken   uint64
	retryPending bool

	tornDown bool
}

func newMachine() machine {
	return machine{ready: domain.ReadyStateClosed}
}

// transition computes the next state and the side effects to run.
func transition(m machine, ev event, retryOnConstructionFailure bool) (machine, []effect) {
	var effects []effect

	switch ev.kind {
	case eventConnect:
		m.tornDown = false
		if ev.url != "" {
			m.url = ev.url
		}
		return m.dial(effects)

	case eventRetryDue:
		if !m.retryPending || ev.token != m.retryToken || m.tornDown {
			return m, nil
		}
		m.retryPending = false
		return m.dial(effects)

	case eventConstructionFailed:
		if ev.generation != m.generation || !m.connected {
			return m, nil
		}
		m.connected = false
		m.ready = domain.ReadyStateClosed
		effects = append(effects,
			effect{kind: effectNotifyState},
			effect{kind: effectNotifyError, err: ev.err},
		)
		if retryOnConstructionFailure && !m.tornDown {
			m, effects = m.scheduleRetry(effects)
		}
		return m, effects

	case eventOpened:
		if ev.generation != m.generation || !m.connected {
			return m, nil
		}
		m.ready = domain.ReadyStateOpen
		effects = append(effects, effect{kind: effectNotifyState}, effect{kind: effectNotifyOpen})
		if m.retryPending {
			m.retryPending = false
			effects = append(effects, effect{kind: effectCancelRetry})
		}
		return m, effects

	case eventMessage:
		if ev.generation != m.generation || !m.connected {
			return m, nil
		}
		return m, []effect{
			{kind: effectStoreMessage, payload: ev.payload},
			{kind: effectNotifyMessage, payload: ev.payload},
		}

	case eventErrored:
		if ev.generation != m.generation || !m.connected {
			return m, nil
		}
		return m, []effect{{kind: effectNotifyError, err: ev.err}}

	case eventClosed:
		if ev.generation != m.generation || !m.connected {
			return m, nil
		}
		m.connected = false
		m.ready = domain.ReadyStateClosed
		effects = append(effects,
			effect{kind: effectNotifyState},
			effect{kind: effectNotifyClose, close: ev.close},
		)
		if !m.tornDown {
			m, effects = m.scheduleRetry(effects)
		}
		return m, effects

	case eventTeardown:
		if m.tornDown {
			return m, nil
		}
		m.tornDown = true
		if m.retryPending {
			m.retryPending = false
			effects = append(effects, effect{kind: effectCancelRetry})
		}
		if m.connected {
			if m.ready != domain.ReadyStateClosing {
				m.ready = domain.ReadyStateClosing
				effects = append(effects, effect{kind: effectNotifyState})
			}
			effects = append(effects, effect{kind: effectCloseConn, generation: m.generation})
			return m, effects
		}
		if m.ready != domain.ReadyStateClosed {
			m.ready = domain.ReadyStateClosed
			effects = append(effects, effect{kind: effectNotifyState})
		}
		return m, effects
	}

	return m, nil
}

// dial releases the current connection, if any, and starts a new attempt.
func (m machine) dial(effects []effect) (machine, []effect) {
	if m.retryPending {
		m.retryPending = false
		effects = append(effects, effect{kind: effectCancelRetry})
	}
	if m.connected {
		effects = append(effects, effect{kind: effectRelease, generation: m.generation})
	}
	m.generation++
	m.connected = true
	m.ready = domain.ReadyStateConnecting
	effects = append(effects,
		effect{kind: effectNotifyState},
		effect{kind: effectOpen, generation: m.generation},
	)
	return m, effects
}

// scheduleRetry replaces any pending retry with a fresh one.
func (m machine) scheduleRetry(effects []effect) (machine, []effect) {
	if m.retryPending {
		effects = append(effects, effect{kind: effectCancelRetry})
	}
	m.retryToken++
	m.retryPending = true
	effects = append(effects, effect{kind: effectScheduleRetry, token: m.retryToken})
	return m, effects
}
