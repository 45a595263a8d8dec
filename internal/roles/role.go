package roles

import (
	"fmt"
	"strconv"
	"strings"
)

// Role is a per-chat privilege level. Member is never stored explicitly.
type Role int

const (
	Member Role = iota
	Moderator
	Admin
	Owner
	SuperOwner
)

var roleNames = [...]string{
	Member:     "member",
	Moderator:  "moderator",
	Admin:      "admin",
	Owner:      "owner",
	SuperOwner: "super-owner",
}

func (r Role) Valid() bool { return r >= Member && r <= SuperOwner }

func (r Role) String() string {
	if !r.Valid() {
		return "role(" + strconv.Itoa(int(r)) + ")"
	}
	return roleNames[r]
}

// Parse accepts either the numeric level or the role name.
func Parse(s string) (Role, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, err := strconv.Atoi(s); err == nil {
		r := Role(n)
		if !r.Valid() {
			return Member, fmt.Errorf("%w: %d", ErrInvalidRole, n)
		}
		return r, nil
	}
	for i, name := range roleNames {
		if name == s {
			return Role(i), nil
		}
	}
	return Member, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Assignment binds a role to a user inside one chat.
type Assignment struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}
