package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storozh.org/internal/audit"
	"storozh.org/internal/mute"
	"storozh.org/internal/obs"
	"storozh.org/internal/platform"
	"storozh.org/internal/quorum"
	"storozh.org/internal/roles"
)

// Muter is the mute lifecycle owner.
type Muter interface {
	Mute(ctx context.Context, actorID, chatID, userID int64, until time.Time) (mute.Record, error)
	Unmute(ctx context.Context, actorID, chatID, userID int64) error
}

// Auditor is the audit trail as seen by command handlers.
type Auditor interface {
	Append(ctx context.Context, targetID int64, action string, actorID, chatID int64) (audit.Entry, error)
	QueryChat(ctx context.Context, targetID, chatID int64) ([]audit.Entry, error)
}

// Status tells whether a command took effect.
type Status string

const (
	StatusDone    Status = "done"
	StatusPending Status = "pending"
)

// Result is the single reply produced by a command.
type Result struct {
	Command    string             `json:"command"`
	Status     Status             `json:"status"`
	Reply      string             `json:"reply"`
	TargetID   int64              `json:"target_id,omitempty"`
	Until      *time.Time         `json:"until,omitempty"`
	Entries    []audit.Entry      `json:"entries,omitempty"`
	Staff      []roles.Assignment `json:"staff,omitempty"`
	Operations []roles.Operation  `json:"operations,omitempty"`
}

// MessageRef points at the message a command replies to.
type MessageRef struct {
	MessageID int64 `json:"message_id"`
	AuthorID  int64 `json:"author_id"`
}

// Deps are the collaborators of Service. All are required.
type Deps struct {
	Roles  *roles.Service
	Mutes  Muter
	Audit  Auditor
	Quorum *quorum.Quorum
	Client platform.Client
}

// Service runs moderation commands: authorize, mutate, audit, notify.
type Service struct {
	roles  *roles.Service
	mutes  Muter
	audit  Auditor
	quorum *quorum.Quorum
	client platform.Client

	defaultMute time.Duration
	bypass      roles.Role
	now         func() time.Time
	duration    func(string, time.Duration) time.Duration
}

// Option configures Service.
type Option func(*Service)

// WithDefaultMute sets the mute length used when none is given.
func WithDefaultMute(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.defaultMute = d
		}
	}
}

// WithBypassRole sets the lowest role whose confirmation-gated commands run
// without a second vote.
func WithBypassRole(r roles.Role) Option {
	return func(s *Service) {
		if r.Valid() {
			s.bypass = r
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDurationParser replaces ParseDuration for the mute command.
func WithDurationParser(fn func(string, time.Duration) time.Duration) Option {
	return func(s *Service) {
		if fn != nil {
			s.duration = fn
		}
	}
}

func NewService(deps Deps, opts ...Option) (*Service, error) {
	if deps.Roles == nil || deps.Mutes == nil || deps.Audit == nil || deps.Quorum == nil || deps.Client == nil {
		return nil, errors.New("moderation: roles, mutes, audit, quorum and client are required")
	}
	s := &Service{
		roles:       deps.Roles,
		mutes:       deps.Mutes,
		audit:       deps.Audit,
		quorum:      deps.Quorum,
		client:      deps.Client,
		defaultMute: 10 * time.Minute,
		bypass:      roles.Admin,
		now:         time.Now,
		duration:    ParseDuration,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DefaultMute returns the configured fallback mute length.
func (s *Service) DefaultMute() time.Duration { return s.defaultMute }

// Promote grants role to the target.
func (s *Service) Promote(ctx context.Context, chatID, actorID, targetID int64, role roles.Role) (res Result, err error) {
	defer observe(roles.OpPromote, &err)
	d, err := s.roles.Promote(ctx, chatID, actorID, targetID, role)
	if err != nil {
		if errors.Is(err, roles.ErrInvalidRole) || errors.Is(err, roles.ErrInvalidInput) {
			return Result{}, fmt.Errorf("%w: %w", ErrUserInput, err)
		}
		return Result{}, err
	}
	if !d.Allowed {
		return Result{}, denied(d)
	}
	if _, err := s.audit.Append(ctx, targetID, fmt.Sprintf("promote to %d", role), actorID, chatID); err != nil {
		return Result{}, err
	}
	s.notify(ctx, targetID, fmt.Sprintf("You are now %s in chat %d.", role, chatID))
	return Result{
		Command:  string(roles.OpPromote),
		Status:   StatusDone,
		TargetID: targetID,
		Reply:    fmt.Sprintf("User %d is now %s.", targetID, role),
	}, nil
}

// Demote removes the target's role.
func (s *Service) Demote(ctx context.Context, chatID, actorID, targetID int64) (res Result, err error) {
	defer observe(roles.OpDemote, &err)
	d, err := s.roles.Demote(ctx, chatID, actorID, targetID)
	if err != nil {
		return Result{}, inputOr(err)
	}
	if !d.Allowed {
		return Result{}, denied(d)
	}
	if _, err := s.audit.Append(ctx, targetID, "demote", actorID, chatID); err != nil {
		return Result{}, err
	}
	s.notify(ctx, targetID, fmt.Sprintf("You were demoted in chat %d.", chatID))
	return Result{
		Command:  string(roles.OpDemote),
		Status:   StatusDone,
		TargetID: targetID,
		Reply:    fmt.Sprintf("User %d was demoted.", targetID),
	}, nil
}

// Kick removes the target from the chat without banning them.
func (s *Service) Kick(ctx context.Context, chatID, actorID, targetID int64, reason string) (res Result, err error) {
	defer observe(roles.OpKick, &err)
	if err := s.authorize(ctx, chatID, actorID, targetID, roles.OpKick); err != nil {
		return Result{}, err
	}
	if err := s.client.Ban(ctx, chatID, targetID); err != nil {
		return Result{}, &PlatformError{Op: "kick", Err: err}
	}
	if err := s.client.Unban(ctx, chatID, targetID); err != nil {
		// One retry; after that the user stays banned and the error says so.
		if err = s.client.Unban(ctx, chatID, targetID); err != nil {
			obs.Error("kick: unban failed after ban", map[string]any{"chat_id": chatID, "user_id": targetID, "error": err})
			return Result{}, &PlatformError{Op: "kick", Err: fmt.Errorf("%w: %w", ErrLeftBanned, err)}
		}
	}

	reason = strings.TrimSpace(reason)
	action, reply, notice := "kick", fmt.Sprintf("User %d was kicked.", targetID), fmt.Sprintf("You were kicked from chat %d.", chatID)
	if reason != "" {
		action = "kick: " + reason
		reply = fmt.Sprintf("User %d was kicked: %q.", targetID, reason)
		notice = fmt.Sprintf("You were kicked from chat %d: %q.", chatID, reason)
	}
	if _, err := s.audit.Append(ctx, targetID, action, actorID, chatID); err != nil {
		return Result{}, err
	}
	s.notify(ctx, targetID, notice)
	return Result{Command: string(roles.OpKick), Status: StatusDone, TargetID: targetID, Reply: reply}, nil
}

// Mute restricts the target for d, or the default duration when d <= 0.
func (s *Service) Mute(ctx context.Context, chatID, actorID, targetID int64, d time.Duration) (res Result, err error) {
	defer observe(roles.OpMute, &err)
	if err := s.authorize(ctx, chatID, actorID, targetID, roles.OpMute); err != nil {
		return Result{}, err
	}
	if d <= 0 {
		d = s.defaultMute
	}
	rec, err := s.mutes.Mute(ctx, actorID, chatID, targetID, s.now().Add(d))
	if err != nil {
		if errors.Is(err, mute.ErrRestrictFailed) {
			return Result{}, &PlatformError{Op: "mute", Err: err}
		}
		return Result{}, err
	}
	until := rec.UnmuteAt
	return Result{
		Command:  string(roles.OpMute),
		Status:   StatusDone,
		TargetID: targetID,
		Until:    &until,
		Reply:    fmt.Sprintf("User %d is muted until %s.", targetID, until.Format("2006-01-02 15:04 UTC")),
	}, nil
}

// Unmute lifts a mute before it expires.
func (s *Service) Unmute(ctx context.Context, chatID, actorID, targetID int64) (res Result, err error) {
	defer observe(roles.OpUnmute, &err)
	if err := s.authorize(ctx, chatID, actorID, targetID, roles.OpUnmute); err != nil {
		return Result{}, err
	}
	if err := s.mutes.Unmute(ctx, actorID, chatID, targetID); err != nil {
		if errors.Is(err, mute.ErrUnrestrictFailed) {
			return Result{}, &PlatformError{Op: "unmute", Err: err}
		}
		return Result{}, err
	}
	return Result{
		Command:  string(roles.OpUnmute),
		Status:   StatusDone,
		TargetID: targetID,
		Reply:    fmt.Sprintf("User %d was unmuted.", targetID),
	}, nil
}

// Logs returns the target's audit entries recorded in this chat, oldest first.
func (s *Service) Logs(ctx context.Context, chatID, actorID, targetID int64) (res Result, err error) {
	defer observe(roles.OpReadLogs, &err)
	if err := s.authorize(ctx, chatID, actorID, targetID, roles.OpReadLogs); err != nil {
		return Result{}, err
	}
	entries, err := s.audit.QueryChat(ctx, targetID, chatID)
	if err != nil {
		return Result{}, err
	}
	res = Result{Command: string(roles.OpReadLogs), Status: StatusDone, TargetID: targetID, Entries: entries}
	if len(entries) == 0 {
		res.Reply = "This user has no log entries."
		return res, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Logs for %d:\n", targetID)
	for _, e := range entries {
		fmt.Fprintf(&b, "%s - %s\n", e.At.UTC().Format("2006-01-02 15:04 UTC"), e.Action)
	}
	res.Reply = b.String()
	return res, nil
}

// Clear removes the replied-to message, behind a confirmation for low roles.
func (s *Service) Clear(ctx context.Context, chatID, actorID int64, msg MessageRef) (Result, error) {
	return s.gated(ctx, roles.OpClear, quorum.KindClear, chatID, actorID, msg, func() error {
		return s.client.DeleteMessage(ctx, chatID, msg.MessageID)
	})
}

// Delete removes a message. No dominance over its author is required.
func (s *Service) Delete(ctx context.Context, chatID, actorID int64, msg MessageRef) (Result, error) {
	return s.gated(ctx, roles.OpDelete, quorum.KindDelete, chatID, actorID, msg, func() error {
		return s.client.DeleteMessage(ctx, chatID, msg.MessageID)
	})
}

// MassBlock bans the author of the replied-to message and removes the message.
func (s *Service) MassBlock(ctx context.Context, chatID, actorID int64, msg MessageRef) (Result, error) {
	return s.gated(ctx, roles.OpMassBlock, quorum.KindMassBlock, chatID, actorID, msg, func() error {
		if err := s.client.Ban(ctx, chatID, msg.AuthorID); err != nil {
			return err
		}
		return s.client.DeleteMessage(ctx, chatID, msg.MessageID)
	})
}

func (s *Service) gated(ctx context.Context, op roles.Operation, kind quorum.Kind, chatID, actorID int64, msg MessageRef, action func() error) (res Result, err error) {
	defer observe(op, &err)
	if msg.MessageID == 0 {
		return Result{}, userInput("%s must reply to a message", op)
	}
	if msg.AuthorID == 0 && roles.NeedsDominance(op) {
		return Result{}, userInput("%s needs the author of the replied-to message", op)
	}
	d, err := s.roles.Authorize(ctx, chatID, actorID, msg.AuthorID, op)
	if err != nil {
		return Result{}, inputOr(err)
	}
	if !d.Allowed {
		return Result{}, denied(d)
	}

	target := quorum.Message{ChatID: chatID, MessageID: msg.MessageID}
	if d.Actor < s.bypass && s.quorum.Request(kind, target, actorID, s.now()) == quorum.Pending {
		return Result{
			Command:  string(op),
			Status:   StatusPending,
			TargetID: msg.AuthorID,
			Reply:    fmt.Sprintf("%s needs confirmation: another moderator must repeat the command.", op),
		}, nil
	}

	if err := action(); err != nil {
		return Result{}, &PlatformError{Op: string(op), Err: err}
	}
	s.quorum.Clear(kind, target)
	if _, err := s.audit.Append(ctx, msg.AuthorID, string(op), actorID, chatID); err != nil {
		return Result{}, err
	}
	return Result{Command: string(op), Status: StatusDone, TargetID: msg.AuthorID, Reply: fmt.Sprintf("%s done.", op)}, nil
}

// Report alerts the chat staff about a user.
func (s *Service) Report(ctx context.Context, chatID, actorID, targetID int64, text string) (res Result, err error) {
	defer observe(roles.OpReport, &err)
	if targetID == 0 {
		return Result{}, userInput("report needs a reply or a user")
	}
	if err := s.authorize(ctx, chatID, actorID, targetID, roles.OpReport); err != nil {
		return Result{}, err
	}
	staff, err := s.roles.Staff(ctx, chatID)
	if err != nil {
		return Result{}, err
	}
	if len(staff) == 0 {
		return Result{}, ErrNoStaff
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = "[no text]"
	}
	mentions := make([]string, 0, len(staff))
	for _, a := range staff {
		mentions = append(mentions, fmt.Sprintf("tg://user?id=%d", a.UserID))
	}
	report := fmt.Sprintf("User %d reported user %d\n%s\nAttention: %s", actorID, targetID, text, strings.Join(mentions, " "))
	if err := s.client.SendMessage(ctx, chatID, report); err != nil {
		return Result{}, &PlatformError{Op: "report", Err: err}
	}
	return Result{
		Command:  string(roles.OpReport),
		Status:   StatusDone,
		TargetID: targetID,
		Staff:    staff,
		Reply:    fmt.Sprintf("Report sent to %d staff members.", len(staff)),
	}, nil
}

// Help lists the commands available to the actor in this chat.
func (s *Service) Help(ctx context.Context, chatID, actorID int64) (res Result, err error) {
	role, err := s.roles.Role(ctx, chatID, actorID)
	if err != nil {
		return Result{}, err
	}
	ops := roles.Allowed(role)
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, "/"+commandName(op))
	}
	return Result{
		Command:    "help",
		Status:     StatusDone,
		Operations: ops,
		Reply:      fmt.Sprintf("You are %s. Available: %s /help", role, strings.Join(names, " ")),
	}, nil
}

func (s *Service) authorize(ctx context.Context, chatID, actorID, targetID int64, op roles.Operation) error {
	d, err := s.roles.Authorize(ctx, chatID, actorID, targetID, op)
	if err != nil {
		return inputOr(err)
	}
	if !d.Allowed {
		return denied(d)
	}
	return nil
}

// notify is best-effort.
func (s *Service) notify(ctx context.Context, target int64, text string) {
	if err := s.client.SendMessage(ctx, target, text); err != nil {
		obs.Warn("notification failed", map[string]any{"target": target, "error": err})
	}
}

func inputOr(err error) error {
	if errors.Is(err, roles.ErrInvalidInput) {
		return fmt.Errorf("%w: %w", ErrUserInput, err)
	}
	return err
}

func observe(op roles.Operation, err *error) {
	obs.ModerationActions.WithLabelValues(string(op), outcome(*err)).Inc()
}
