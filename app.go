package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"assistctl/internal/bootstrap"
	"assistctl/internal/domain"
)

const (
	eventConnection = "assistctl:connection"
	eventMessage    = "assistctl:message"
	eventVoice      = "assistctl:voice"
	eventCommand    = "assistctl:command"
	eventError      = "assistctl:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services *bootstrap.Services
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, bootstrap.Options{})
	if err != nil {
		a.bootErr = err
		a.ConsoleError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	if services.Lines != nil {
		go func() {
			if err := services.Lines.Consume(os.Stdin); err != nil {
				services.Logger.Warn("reading utterances from stdin", "error", err)
			}
		}()
	}
	services.Start()
}

func (a *App) shutdown(_ context.Context) {
	if a.services != nil {
		_ = a.services.Close()
	}
}

// Press sends a button command to the remote controller.
func (a *App) Press(command string) (domain.ConsoleStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.ConsoleStatus{}, err
	}
	cmd, err := domain.ParseCommand(command)
	if err != nil {
		return domain.ConsoleStatus{}, err
	}
	if err := a.services.Console.Press(cmd); err != nil {
		return a.services.Console.Status(), err
	}
	return a.services.Console.Status(), nil
}

// SetVoiceEnabled turns voice commands on or off.
func (a *App) SetVoiceEnabled(enabled bool) (domain.VoiceStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.VoiceStatus{}, err
	}
	if err := a.services.Console.SetVoiceEnabled(enabled); err != nil {
		return domain.VoiceStatus{}, err
	}
	return a.services.Console.Status().Voice, nil
}

// GetStatus returns everything the console renders.
func (a *App) GetStatus() domain.ConsoleStatus {
	if a.services == nil {
		status := domain.ConsoleStatus{
			Connection: domain.ConnectionStatus{
				ReadyState: domain.ReadyStateClosed,
				State:      domain.ReadyStateClosed.String(),
			},
			Voice: domain.VoiceStatus{State: domain.VoiceStateDisabled},
		}
		if a.bootErr != nil {
			status.Error = a.bootErr.Error()
		}
		return status
	}
	return a.services.Console.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	return map[string]string{
		"remote":         cfg.Remote.URL,
		"reconnectMs":    strconv.FormatInt(cfg.Remote.ReconnectInterval.Milliseconds(), 10),
		"speechProvider": cfg.Voice.Provider,
		"language":       cfg.Voice.Language,
		"keywordsFile":   cfg.Voice.KeywordsPath,
		"debounceMs":     strconv.FormatInt(cfg.Voice.DebounceInterval.Milliseconds(), 10),
		"model":          cfg.Deepgram.Model,
		"audioInput":     cfg.Audio.InputDevice,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return errors.New("application is not initialized")
	}
	return nil
}

// ConnectionStateChanged emits connection lifecycle updates to the frontend.
func (a *App) ConnectionStateChanged(status domain.ConnectionStatus) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventConnection, map[string]any{
		"readyState": int(status.ReadyState),
		"state":      status.State,
		"message":    connectionMessage(status.ReadyState),
	})
}

// MessageReceived emits an inbound controller payload verbatim.
func (a *App) MessageReceived(payload []byte) {
	if a.ctx == nil {
		return
	}
	event := map[string]any{"raw": string(payload)}
	if msg, ok := domain.DecodeInbound(payload); ok {
		event["message"] = msg
	}
	runtime.EventsEmit(a.ctx, eventMessage, event)
}

// VoiceStatusChanged emits listening state and the latest transcript.
func (a *App) VoiceStatusChanged(status domain.VoiceStatus) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventVoice, status)
}

// CommandDispatched emits a command that reached the connection.
func (a *App) CommandDispatched(cmd domain.Command, source domain.CommandSource) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventCommand, map[string]string{
		"command": string(cmd),
		"source":  string(source),
	})
}

// ConsoleError emits backend errors to the UI.
func (a *App) ConsoleError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func connectionMessage(state domain.ReadyState) string {
	switch state {
	case domain.ReadyStateConnecting:
		return "Connecting to controller"
	case domain.ReadyStateOpen:
		return "Connected"
	case domain.ReadyStateClosing:
		return "Disconnecting"
	case domain.ReadyStateClosed:
		return "Disconnected"
	default:
		return fmt.Sprintf("Unknown state %d", int(state))
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeTransport:
		return "Connection problem; retrying"
	case domain.ErrorCodeSend:
		return "Command not delivered"
	case domain.ErrorCodeSpeech:
		return "Speech recognition error"
	case domain.ErrorCodeUnsupported:
		return "Speech recognition unavailable"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
