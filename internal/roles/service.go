package roles

import (
	"context"
	"errors"
	"fmt"
)

// Store persists role assignments. SetRole with Member removes the assignment.
type Store interface {
	Role(ctx context.Context, chatID, userID int64) (Role, error)
	SetRole(ctx context.Context, chatID, userID int64, role Role) error
	Staff(ctx context.Context, chatID int64) ([]Assignment, error)
}

// Service reads roles through the store and mutates them only after Decide allows it.
type Service struct {
	store Store
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("roles store is required")
	}
	return &Service{store: store}, nil
}

func (s *Service) Role(ctx context.Context, chatID, userID int64) (Role, error) {
	r, err := s.store.Role(ctx, chatID, userID)
	if err != nil {
		return Member, fmt.Errorf("load role: %w", err)
	}
	return r, nil
}

// Authorize loads both roles and evaluates op. targetID may be 0 for
// operations without a target user.
func (s *Service) Authorize(ctx context.Context, chatID, actorID, targetID int64, op Operation) (Decision, error) {
	return s.decide(ctx, chatID, actorID, targetID, op, Member)
}

// Promote grants role to the target when the actor is allowed to.
// A denial is returned as a Decision with a nil error.
func (s *Service) Promote(ctx context.Context, chatID, actorID, targetID int64, role Role) (Decision, error) {
	if !role.Valid() {
		return Decision{}, fmt.Errorf("%w: %d", ErrInvalidRole, role)
	}
	d, err := s.decide(ctx, chatID, actorID, targetID, OpPromote, role)
	if err != nil || !d.Allowed {
		return d, err
	}
	if err := s.store.SetRole(ctx, chatID, targetID, role); err != nil {
		return Decision{}, fmt.Errorf("store role: %w", err)
	}
	return d, nil
}

// Demote removes the target's role entirely.
func (s *Service) Demote(ctx context.Context, chatID, actorID, targetID int64) (Decision, error) {
	d, err := s.decide(ctx, chatID, actorID, targetID, OpDemote, Member)
	if err != nil || !d.Allowed {
		return d, err
	}
	if err := s.store.SetRole(ctx, chatID, targetID, Member); err != nil {
		return Decision{}, fmt.Errorf("remove role: %w", err)
	}
	return d, nil
}

// Staff lists everyone holding at least Moderator in the chat.
func (s *Service) Staff(ctx context.Context, chatID int64) ([]Assignment, error) {
	staff, err := s.store.Staff(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	return staff, nil
}

func (s *Service) decide(ctx context.Context, chatID, actorID, targetID int64, op Operation, requested Role) (Decision, error) {
	if chatID == 0 || actorID == 0 {
		return Decision{}, fmt.Errorf("%w: chat_id and actor_id are required", ErrInvalidInput)
	}
	actor, err := s.Role(ctx, chatID, actorID)
	if err != nil {
		return Decision{}, err
	}
	target := Member
	if targetID != 0 {
		if target, err = s.Role(ctx, chatID, targetID); err != nil {
			return Decision{}, err
		}
	}
	return Decide(Request{
		Op:         op,
		Actor:      actor,
		Target:     target,
		SelfTarget: targetID != 0 && targetID == actorID,
		Requested:  requested,
	}), nil
}
