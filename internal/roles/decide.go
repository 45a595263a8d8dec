package roles

// Operation is a privileged action requested by an actor.
type Operation string

const (
	OpPromote   Operation = "promote"
	OpDemote    Operation = "demote"
	OpKick      Operation = "kick"
	OpMute      Operation = "mute"
	OpUnmute    Operation = "unmute"
	OpClear     Operation = "clear"
	OpDelete    Operation = "delete"
	OpMassBlock Operation = "mass-block"
	OpReadLogs  Operation = "logs-read"
	OpReport    Operation = "report"
)

// Reason explains a denial so callers can render it without re-deriving it.
type Reason string

const (
	ReasonInsufficientRole Reason = "insufficient-role"
	ReasonSelfTarget       Reason = "self-target"
	ReasonCeilingExceeded  Reason = "role-ceiling-exceeded"
	ReasonTargetOutranks   Reason = "target-outranks-actor"
	ReasonEqualRank        Reason = "equal-rank"
	ReasonNothingToDemote  Reason = "nothing-to-demote"
	ReasonUnknownOperation Reason = "unknown-operation"
)

// operationOrder fixes the listing order used by Allowed.
var operationOrder = []Operation{
	OpReport, OpKick, OpMute, OpUnmute, OpClear, OpDelete, OpMassBlock,
	OpPromote, OpDemote, OpReadLogs,
}

var minRole = map[Operation]Role{
	OpReport:    Member,
	OpKick:      Moderator,
	OpMute:      Moderator,
	OpUnmute:    Moderator,
	OpClear:     Moderator,
	OpDelete:    Moderator,
	OpMassBlock: Moderator,
	OpPromote:   Admin,
	OpDemote:    Admin,
	OpReadLogs:  Admin,
}

var selfGuarded = map[Operation]bool{
	OpPromote: true,
	OpDemote:  true,
	OpKick:    true,
	OpMute:    true,
	OpUnmute:  true,
}

var needsDominance = map[Operation]bool{
	OpPromote:   true,
	OpDemote:    true,
	OpKick:      true,
	OpMute:      true,
	OpUnmute:    true,
	OpClear:     true,
	OpMassBlock: true,
}

// Request is the input of Decide.
type Request struct {
	Op         Operation
	Actor      Role
	Target     Role
	SelfTarget bool
	// Requested is the role being granted; only meaningful for OpPromote.
	Requested Role
}

// Decision is the outcome of Decide. Reason is empty when Allowed.
type Decision struct {
	Op        Operation `json:"operation"`
	Allowed   bool      `json:"allowed"`
	Reason    Reason    `json:"reason,omitempty"`
	Actor     Role      `json:"actor_role"`
	Target    Role      `json:"target_role"`
	Requested Role      `json:"requested_role,omitempty"`
}

// Decide evaluates the hierarchy rules in precedence order; the first
// matching rule wins. It has no side effects.
func Decide(req Request) Decision {
	d := Decision{Op: req.Op, Actor: req.Actor, Target: req.Target, Requested: req.Requested}
	deny := func(r Reason) Decision {
		d.Reason = r
		return d
	}

	need, known := minRole[req.Op]
	if !known {
		return deny(ReasonUnknownOperation)
	}
	if req.SelfTarget && selfGuarded[req.Op] {
		return deny(ReasonSelfTarget)
	}
	// Equal rank is reported as such for every level, including members.
	if needsDominance[req.Op] && req.Actor == req.Target {
		return deny(ReasonEqualRank)
	}
	if req.Actor < need {
		return deny(ReasonInsufficientRole)
	}

	switch req.Op {
	case OpPromote:
		if !withinCeiling(req.Actor, req.Requested) {
			return deny(ReasonCeilingExceeded)
		}
	case OpDemote:
		if req.Target == Member {
			return deny(ReasonNothingToDemote)
		}
		if !withinCeiling(req.Actor, req.Target) {
			return deny(ReasonCeilingExceeded)
		}
	}

	if needsDominance[req.Op] && req.Actor <= req.Target {
		return deny(ReasonTargetOutranks)
	}
	d.Allowed = true
	return d
}

// NeedsDominance reports whether op requires the actor to outrank a known target.
func NeedsDominance(op Operation) bool { return needsDominance[op] }

// Ceiling is the highest role the actor may grant or revoke.
func Ceiling(actor Role) Role {
	switch actor {
	case Admin:
		return Moderator
	case Owner:
		return Owner
	case SuperOwner:
		return SuperOwner
	}
	return Member
}

func withinCeiling(actor, r Role) bool {
	return r >= Moderator && r <= Ceiling(actor)
}

// Allowed lists the operations a role may invoke at all, ignoring targets.
func Allowed(actor Role) []Operation {
	var ops []Operation
	for _, op := range operationOrder {
		if actor >= minRole[op] {
			ops = append(ops, op)
		}
	}
	return ops
}
