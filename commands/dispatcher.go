// Package commands implements the chat commands: the timestamp bookmark and the admin
// commands, their permission and cooldown gates, and the dispatcher that routes each
// chat line to the first matching command.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/vod-stamp/chat"
	"github.com/onnwee/vod-stamp/store"
	"github.com/onnwee/vod-stamp/telemetry"
)

// Command is one chat command.
type Command interface {
	Name() string
	Match(text string) bool
	Execute(ctx context.Context, msg *chat.Message) error
}

// Env is what commands share: the chat sender for replies and the mutable store.
type Env struct {
	Chat  chat.Sender
	Store *store.Store
}

// Reply sends "@user, text" back to the channel the message came from.
func (e *Env) Reply(msg *chat.Message, text string) {
	e.Chat.Say(msg.Channel, fmt.Sprintf("@%s, %s", msg.User.Name, text))
}

const noPermissionReply = "you do not have permission to use this command."

// hasPrefixFold reports whether text starts with prefix, ignoring case.
func hasPrefixFold(text, prefix string) bool {
	return len(text) >= len(prefix) && strings.EqualFold(text[:len(prefix)], prefix)
}

// Dispatcher tries commands in registration order and runs the first match.
type Dispatcher struct {
	commands []Command
	logger   *slog.Logger
}

// NewDispatcher returns a dispatcher over cmds, in priority order.
func NewDispatcher(cmds ...Command) *Dispatcher {
	return &Dispatcher{
		commands: cmds,
		logger:   slog.Default().With(slog.String("component", "commands")),
	}
}

// Register appends a command at the lowest priority.
func (d *Dispatcher) Register(c Command) { d.commands = append(d.commands, c) }

// Handle routes one chat line and returns the name of the command that ran, or "".
// Errors and panics are logged and do not escape.
func (d *Dispatcher) Handle(ctx context.Context, msg *chat.Message) (handled string) {
	var cmd Command
	for _, c := range d.commands {
		if c.Match(msg.Text) {
			cmd = c
			break
		}
	}
	if cmd == nil {
		return ""
	}
	handled = cmd.Name()

	ctx = telemetry.WithCorrelation(ctx, telemetry.NewCorrelationID())
	ctx, span := telemetry.StartSpan(ctx, "commands", "command."+cmd.Name(),
		attribute.String("command", cmd.Name()),
		attribute.String("user", msg.User.Name))
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "commands"), slog.String("command", cmd.Name()), slog.String("user", msg.User.Name))

	defer func() {
		if r := recover(); r != nil {
			log.Error("command panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			telemetry.RecordError(span, fmt.Errorf("panic: %v", r))
		}
	}()

	telemetry.IncVec(telemetry.CommandsHandled, cmd.Name())
	if err := cmd.Execute(ctx, msg); err != nil {
		log.Error("command failed", slog.Any("err", err))
		telemetry.RecordError(span, err)
		return handled
	}
	log.Debug("command handled")
	telemetry.SetSpanSuccess(span)
	return handled
}
