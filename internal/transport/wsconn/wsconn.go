package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"assistctl/internal/domain"
	"assistctl/internal/ports"
)

// Config controls websocket dialing.
type Config struct {
	HandshakeTimeout time.Duration
	Header           http.Header
}

// Provider implements ports.TransportProvider over gorilla/websocket.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewProvider(cfg Config) *Provider {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = cfg.HandshakeTimeout
	return &Provider{cfg: cfg, dialer: &dialer}
}

// Open validates rawURL and dials it in the background. The returned
// connection starts in the connecting state.
func (p *Provider) Open(rawURL string, handlers ports.TransportHandlers) (ports.TransportConn, error) {
	target, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		handlers: handlers,
		state:    domain.ReadyStateConnecting,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.run(ctx, p.dialer, target, p.cfg.Header)
	return c, nil
}

func parseURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", errors.New("websocket url is empty")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid websocket url: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported websocket scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("websocket url %q has no host", rawURL)
	}
	return parsed.String(), nil
}

type conn struct {
	handlers ports.TransportHandlers
	cancel   context.CancelFunc
	done     chan struct{}

	mu      sync.Mutex
	state   domain.ReadyState
	ws      *websocket.Conn
	closing bool

	writeMu sync.Mutex
}

func (c *conn) ReadyState() domain.ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *conn) Send(payload []byte) error {
	c.mu.Lock()
	ws := c.ws
	state := c.state
	c.mu.Unlock()

	if state != domain.ReadyStateOpen || ws == nil {
		return errors.New("websocket is not open")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, payload)
}

// Close starts the close handshake. OnClose fires once the read loop ends.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closing || c.state == domain.ReadyStateClosed {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	ws := c.ws
	if c.state == domain.ReadyStateOpen {
		c.state = domain.ReadyStateClosing
	}
	c.mu.Unlock()

	c.cancel()
	if ws == nil {
		return nil
	}

	c.writeMu.Lock()
	err := ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	go func() {
		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
			_ = ws.Close()
		}
	}()

	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		_ = ws.Close()
		return fmt.Errorf("failed to send close frame: %w", err)
	}
	return nil
}

func (c *conn) run(ctx context.Context, dialer *websocket.Dialer, target string, header http.Header) {
	defer close(c.done)

	ws, _, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		c.mu.Lock()
		closing := c.closing
		c.state = domain.ReadyStateClosed
		c.mu.Unlock()
		if !closing {
			c.emitError(fmt.Errorf("failed to connect to %s: %w", target, err))
		}
		c.emitClose(domain.CloseInfo{Code: websocket.CloseAbnormalClosure, Reason: "dial failed"})
		return
	}

	c.mu.Lock()
	if c.closing {
		c.state = domain.ReadyStateClosed
		c.mu.Unlock()
		_ = ws.Close()
		c.emitClose(domain.CloseInfo{Code: websocket.CloseNormalClosure})
		return
	}
	c.ws = ws
	c.state = domain.ReadyStateOpen
	c.mu.Unlock()

	if c.handlers.OnOpen != nil {
		c.handlers.OnOpen()
	}

	info := c.readLoop(ws)

	c.mu.Lock()
	c.state = domain.ReadyStateClosed
	c.mu.Unlock()
	_ = ws.Close()
	c.emitClose(info)
}

func (c *conn) readLoop(ws *websocket.Conn) domain.CloseInfo {
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			return c.closeInfo(err)
		}
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(payload)
		}
	}
}

func (c *conn) closeInfo(err error) domain.CloseInfo {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return domain.CloseInfo{Code: closeErr.Code, Reason: closeErr.Text}
	}

	c.mu.Lock()
	closing := c.closing
	c.mu.Unlock()
	if closing {
		return domain.CloseInfo{Code: websocket.CloseNormalClosure}
	}

	c.emitError(fmt.Errorf("failed to read message: %w", err))
	return domain.CloseInfo{Code: websocket.CloseAbnormalClosure, Reason: err.Error()}
}

func (c *conn) emitError(err error) {
	if c.handlers.OnError != nil {
		c.handlers.OnError(err)
	}
}

func (c *conn) emitClose(info domain.CloseInfo) {
	if c.handlers.OnClose != nil {
		c.handlers.OnClose(info)
	}
}
