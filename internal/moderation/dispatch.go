package moderation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"storozh.org/internal/platform"
	"storozh.org/internal/roles"
)

// Command is one parsed invocation delivered by the router. When ReplyTo
// names an author, that author is the target and Args hold only the rest.
type Command struct {
	Name    string      `json:"command"`
	ChatID  int64       `json:"chat_id"`
	ActorID int64       `json:"actor_id"`
	Args    []string    `json:"args,omitempty"`
	ReplyTo *MessageRef `json:"reply_to,omitempty"`
}

var commandNames = map[roles.Operation]string{
	roles.OpMassBlock: "whorebot",
	roles.OpReadLogs:  "logs",
}

func commandName(op roles.Operation) string {
	if name, ok := commandNames[op]; ok {
		return name
	}
	return string(op)
}

// Dispatch runs cmd and returns its single reply.
func (s *Service) Dispatch(ctx context.Context, cmd Command) (Result, error) {
	if cmd.ChatID == 0 || cmd.ActorID == 0 {
		return Result{}, userInput("chat_id and actor_id are required")
	}
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cmd.Name), "/"))
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}

	switch name {
	case "help":
		return s.Help(ctx, cmd.ChatID, cmd.ActorID)
	case "clear":
		return s.Clear(ctx, cmd.ChatID, cmd.ActorID, replyRef(cmd))
	case "delete", "del":
		return s.Delete(ctx, cmd.ChatID, cmd.ActorID, replyRef(cmd))
	case "whorebot", "mass-block", "massblock":
		return s.MassBlock(ctx, cmd.ChatID, cmd.ActorID, replyRef(cmd))
	}

	target, rest, err := s.target(ctx, cmd)
	if err != nil {
		return Result{}, err
	}
	switch name {
	case "promote":
		if len(rest) < 1 {
			return Result{}, userInput("usage: /promote @user <role>")
		}
		role, err := roles.Parse(rest[0])
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrUserInput, err)
		}
		return s.Promote(ctx, cmd.ChatID, cmd.ActorID, target, role)
	case "demote":
		return s.Demote(ctx, cmd.ChatID, cmd.ActorID, target)
	case "kick":
		return s.Kick(ctx, cmd.ChatID, cmd.ActorID, target, strings.Join(rest, " "))
	case "mute":
		d := s.defaultMute
		if len(rest) > 0 {
			d = s.duration(rest[0], s.defaultMute)
		}
		return s.Mute(ctx, cmd.ChatID, cmd.ActorID, target, d)
	case "unmute":
		return s.Unmute(ctx, cmd.ChatID, cmd.ActorID, target)
	case "logs":
		res, err := s.Logs(ctx, cmd.ChatID, cmd.ActorID, target)
		if err != nil {
			return Result{}, err
		}
		// Logs go to the actor privately; the chat only sees a short note.
		if err := s.client.SendMessage(ctx, cmd.ActorID, res.Reply); err != nil {
			res.Reply = "Cannot send you a private message. Write to the bot first."
			return res, nil
		}
		res.Reply = "Logs sent privately."
		return res, nil
	case "report":
		return s.Report(ctx, cmd.ChatID, cmd.ActorID, target, strings.Join(rest, " "))
	}
	return Result{}, userInput("unknown command %q", cmd.Name)
}

// target resolves the command's subject from the reply or the first argument.
func (s *Service) target(ctx context.Context, cmd Command) (int64, []string, error) {
	if cmd.ReplyTo != nil && cmd.ReplyTo.AuthorID != 0 {
		return cmd.ReplyTo.AuthorID, cmd.Args, nil
	}
	if len(cmd.Args) == 0 {
		return 0, nil, userInput("%s needs a user: reply to a message or pass @user", cmd.Name)
	}
	id, err := s.resolve(ctx, cmd.Args[0])
	if err != nil {
		return 0, nil, err
	}
	return id, cmd.Args[1:], nil
}

func (s *Service) resolve(ctx context.Context, handle string) (int64, error) {
	handle = strings.TrimSpace(handle)
	if id, err := strconv.ParseInt(handle, 10, 64); err == nil && id != 0 {
		return id, nil
	}
	id, err := s.client.ResolveUser(ctx, handle)
	if err != nil {
		if errors.Is(err, platform.ErrUserNotFound) {
			return 0, userInput("cannot find user %s", handle)
		}
		return 0, &PlatformError{Op: "resolve user", Err: err}
	}
	return id, nil
}

func replyRef(cmd Command) MessageRef {
	if cmd.ReplyTo == nil {
		return MessageRef{}
	}
	return *cmd.ReplyTo
}
