package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/onnwee/vod-stamp/chat"
)

// Admin is a moderator-only command of the form "<prefix> <keyword> <args>".
type Admin struct {
	Env
	name    string
	match   string
	usage   string
	handler func(a *Admin, ctx context.Context, msg *chat.Message, args string) error
}

func (a *Admin) Name() string { return a.name }

func (a *Admin) Match(text string) bool { return hasPrefixFold(text, a.match) }

func (a *Admin) Execute(ctx context.Context, msg *chat.Message) error {
	if !Classify(msg.Badges).Allows(AdminTiers) {
		a.Reply(msg, noPermissionReply)
		return nil
	}
	return a.handler(a, ctx, msg, msg.Text[len(a.match):])
}

func (a *Admin) usageError(msg *chat.Message) {
	a.Reply(msg, "Invalid usage: "+a.usage)
}

// save persists the store and reports the failure to the caller.
func (a *Admin) save() error {
	if err := a.Store.Save(); err != nil {
		return fmt.Errorf("save store: %w", err)
	}
	return nil
}

// AdminCommands returns the admin commands in dispatch order:
// setcooldown, setmessage, blacklist, unblacklist, reload.
func AdminCommands(env Env, prefix string) []Command {
	return []Command{
		NewSetCooldown(env, prefix),
		NewSetMessage(env, prefix),
		NewBlacklist(env, prefix),
		NewUnblacklist(env, prefix),
		NewReload(env, prefix),
	}
}

// NewSetCooldown sets the bookmark cooldown in seconds.
func NewSetCooldown(env Env, prefix string) *Admin {
	return &Admin{
		Env:   env,
		name:  "setcooldown",
		match: prefix + " setcooldown ",
		usage: prefix + " setcooldown <seconds>",
		handler: func(a *Admin, _ context.Context, msg *chat.Message, args string) error {
			secs, err := strconv.Atoi(strings.TrimSpace(args))
			if err != nil || secs < 0 {
				a.usageError(msg)
				return nil
			}
			a.Store.Set("cooldown", secs)
			a.Reply(msg, fmt.Sprintf("set cooldown to %d seconds.", secs))
			return a.save()
		},
	}
}

// NewSetMessage sets the live or VOD announcement text.
func NewSetMessage(env Env, prefix string) *Admin {
	return &Admin{
		Env:   env,
		name:  "setmessage",
		match: prefix + " setmessage ",
		usage: prefix + " setmessage <live/vod> *message*",
		handler: func(a *Admin, _ context.Context, msg *chat.Message, args string) error {
			parts := strings.SplitN(args, " ", 2)
			if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
				a.usageError(msg)
				return nil
			}
			text := parts[1]
			switch strings.ToLower(parts[0]) {
			case "live":
				a.Store.Set("liveMessage", text)
				a.Reply(msg, `live message set to: "`+text+`"`)
			case "vod":
				a.Store.Set("vodMessage", text)
				a.Reply(msg, `VOD message set to: "`+text+`"`)
			default:
				a.usageError(msg)
				return nil
			}
			return a.save()
		},
	}
}

// NewBlacklist bars a user from the timestamp command.
func NewBlacklist(env Env, prefix string) *Admin {
	return &Admin{
		Env:   env,
		name:  "blacklist",
		match: prefix + " blacklist",
		usage: prefix + " blacklist *username*",
		handler: func(a *Admin, _ context.Context, msg *chat.Message, args string) error {
			user := strings.TrimPrefix(strings.TrimSpace(args), "@")
			if user == "" || strings.ContainsAny(user, " \t") {
				a.usageError(msg)
				return nil
			}
			if !a.Store.Contains("blacklist", strings.ToLower(user)) {
				a.Store.AddToList("blacklist", strings.ToLower(user))
			}
			a.Reply(msg, "Added "+user+" to blacklist")
			return a.save()
		},
	}
}

// NewUnblacklist lifts a blacklist entry.
func NewUnblacklist(env Env, prefix string) *Admin {
	return &Admin{
		Env:   env,
		name:  "unblacklist",
		match: prefix + " unblacklist",
		usage: prefix + " unblacklist *username*",
		handler: func(a *Admin, _ context.Context, msg *chat.Message, args string) error {
			user := strings.TrimPrefix(strings.TrimSpace(args), "@")
			if user == "" || strings.ContainsAny(user, " \t") {
				a.usageError(msg)
				return nil
			}
			if !a.Store.RemoveFromList("blacklist", strings.ToLower(user)) {
				a.Reply(msg, user+" is not blacklisted")
				return nil
			}
			a.Reply(msg, "Removed "+user+" from blacklist")
			return a.save()
		},
	}
}

// NewReload rereads the store from disk, discarding unsaved edits.
func NewReload(env Env, prefix string) *Admin {
	return &Admin{
		Env:   env,
		name:  "reload",
		match: prefix + " reload",
		usage: prefix + " reload",
		handler: func(a *Admin, _ context.Context, msg *chat.Message, _ string) error {
			if err := a.Store.Reload(); err != nil {
				a.Reply(msg, "reload failed.")
				return fmt.Errorf("reload store: %w", err)
			}
			a.Reply(msg, "reloaded DB.")
			return nil
		},
	}
}
