package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Control commands.
const (
	CmdQuit      = "quit"
	CmdSetFPS    = "set_fps"
	CmdGetStatus = "get_status"
)

// Command represents a control plane command.
//
// Payloads are JSON ({"command":"set_fps","fps":10}) or plain text
// ("quit", "set_fps 10").
type Command struct {
	Command string  `json:"command"`
	FPS     float64 `json:"fps,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string         `json:"command_ack"`
	Status     string         `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// CommandCallbacks contains callback functions for commands
type CommandCallbacks struct {
	OnQuit      func()
	OnSetFPS    func(float64) error
	OnGetStatus func() map[string]any
}

// ParseCommand decodes a JSON or plain-text command.
func ParseCommand(payload []byte) (Command, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return Command{}, fmt.Errorf("empty command")
	}

	if strings.HasPrefix(text, "{") {
		var cmd Command
		if err := json.Unmarshal([]byte(text), &cmd); err != nil {
			return Command{}, fmt.Errorf("invalid JSON: %w", err)
		}
		cmd.Command = strings.ToLower(cmd.Command)
		return cmd, nil
	}

	fields := strings.Fields(text)
	cmd := Command{Command: strings.ToLower(fields[0])}
	if cmd.Command == CmdSetFPS {
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("usage: set_fps <fps>")
		}
		fps, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Command{}, fmt.Errorf("invalid fps %q: %w", fields[1], err)
		}
		cmd.FPS = fps
	}
	return cmd, nil
}

// Handler handles control plane commands
type Handler struct {
	transport     Transport
	topic         string
	responseTopic string
	qos           byte
	commands      chan Command
	callbacks     CommandCallbacks

	// OnCommand, when set, is called with every command and its result
	// status (metrics).
	OnCommand func(command, status string)
}

// NewHandler creates a new control plane handler. Responses go to
// topic + "/ack".
func NewHandler(t Transport, topic string, qos byte, callbacks CommandCallbacks) *Handler {
	return &Handler{
		transport:     t,
		topic:         topic,
		responseTopic: topic + "/ack",
		qos:           qos,
		commands:      make(chan Command, 10),
		callbacks:     callbacks,
	}
}

// Run subscribes to the control topic and processes commands until ctx is
// done.
func (h *Handler) Run(ctx context.Context) error {
	slog.Info("subscribing to control plane", "topic", h.topic, "qos", h.qos)

	if err := h.transport.Subscribe(h.topic, h.qos, h.messageHandler); err != nil {
		return fmt.Errorf("control plane: %w", err)
	}
	defer func() {
		if err := h.transport.Unsubscribe(h.topic); err != nil {
			slog.Warn("control plane unsubscribe failed", "error", err)
		}
		slog.Info("control plane handler stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-h.commands:
			h.handleCommand(cmd)
		}
	}
}

// messageHandler is called by the transport when a control message arrives
func (h *Handler) messageHandler(payload []byte) {
	cmd, err := ParseCommand(payload)
	if err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{CommandAck: "unknown", Status: "error", Error: err.Error()})
		return
	}

	slog.Info("control command received", "command", cmd.Command)

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

// handleCommand executes a command
func (h *Handler) handleCommand(cmd Command) {
	resp := Response{CommandAck: cmd.Command}

	switch cmd.Command {
	case CmdQuit:
		if h.callbacks.OnQuit != nil {
			h.callbacks.OnQuit()
			resp.Status = "stopping"
		} else {
			resp.Status = "error"
			resp.Error = "quit not implemented"
		}

	case CmdSetFPS:
		if h.callbacks.OnSetFPS == nil {
			resp.Status = "error"
			resp.Error = "set_fps not implemented"
			break
		}
		if err := h.callbacks.OnSetFPS(cmd.FPS); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
		} else {
			resp.Status = "success"
			resp.Data = map[string]any{"fps": cmd.FPS}
		}

	case CmdGetStatus:
		if h.callbacks.OnGetStatus != nil {
			resp.Status = "success"
			resp.Data = h.callbacks.OnGetStatus()
		} else {
			resp.Status = "error"
			resp.Error = "get_status not implemented"
		}

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	if h.OnCommand != nil {
		h.OnCommand(cmd.Command, resp.Status)
	}
	h.sendResponse(resp)
}

func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC()

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}
	if err := h.transport.Publish(h.responseTopic, h.qos, payload); err != nil {
		slog.Error("failed to publish response", "error", err)
		return
	}
	slog.Debug("response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
