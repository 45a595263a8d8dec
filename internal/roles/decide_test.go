package roles

import "testing"

func TestDecideTable(t *testing.T) {
	cases := []struct {
		name   string
		req    Request
		allow  bool
		reason Reason
	}{
		{"self kick", Request{Op: OpKick, Actor: SuperOwner, Target: SuperOwner, SelfTarget: true}, false, ReasonSelfTarget},
		{"self mute as member", Request{Op: OpMute, Actor: Member, SelfTarget: true}, false, ReasonSelfTarget},
		{"member kicks member", Request{Op: OpKick, Actor: Member, Target: Member}, false, ReasonEqualRank},
		{"member mutes moderator", Request{Op: OpMute, Actor: Member, Target: Moderator}, false, ReasonInsufficientRole},
		{"moderator mutes member", Request{Op: OpMute, Actor: Moderator, Target: Member}, true, ""},
		{"moderator kicks admin", Request{Op: OpKick, Actor: Moderator, Target: Admin}, false, ReasonTargetOutranks},
		{"moderator promotes", Request{Op: OpPromote, Actor: Moderator, Target: Member, Requested: Moderator}, false, ReasonInsufficientRole},
		{"admin promotes to admin", Request{Op: OpPromote, Actor: Admin, Target: Member, Requested: Admin}, false, ReasonCeilingExceeded},
		{"admin promotes to moderator", Request{Op: OpPromote, Actor: Admin, Target: Member, Requested: Moderator}, true, ""},
		{"owner promotes to super", Request{Op: OpPromote, Actor: Owner, Target: Member, Requested: SuperOwner}, false, ReasonCeilingExceeded},
		{"owner promotes to member", Request{Op: OpPromote, Actor: Owner, Target: Moderator, Requested: Member}, false, ReasonCeilingExceeded},
		{"owner promotes admin to owner", Request{Op: OpPromote, Actor: Owner, Target: Admin, Requested: Owner}, true, ""},
		{"admin demotes member", Request{Op: OpDemote, Actor: Admin, Target: Member}, false, ReasonNothingToDemote},
		{"admin demotes moderator", Request{Op: OpDemote, Actor: Admin, Target: Moderator}, true, ""},
		{"owner demotes owner", Request{Op: OpDemote, Actor: Owner, Target: Owner}, false, ReasonEqualRank},
		{"owner demotes super", Request{Op: OpDemote, Actor: Owner, Target: SuperOwner}, false, ReasonCeilingExceeded},
		{"super demotes owner", Request{Op: OpDemote, Actor: SuperOwner, Target: Owner}, true, ""},
		{"moderator reads logs", Request{Op: OpReadLogs, Actor: Moderator}, false, ReasonInsufficientRole},
		{"admin reads logs", Request{Op: OpReadLogs, Actor: Admin}, true, ""},
		{"member reports", Request{Op: OpReport, Actor: Member}, true, ""},
		{"moderator deletes admin message", Request{Op: OpDelete, Actor: Moderator, Target: Admin}, true, ""},
		{"moderator clears admin message", Request{Op: OpClear, Actor: Moderator, Target: Admin}, false, ReasonTargetOutranks},
		{"unknown", Request{Op: "ban-forever", Actor: SuperOwner}, false, ReasonUnknownOperation},
	}
	for _, tc := range cases {
		d := Decide(tc.req)
		if d.Allowed != tc.allow || d.Reason != tc.reason {
			t.Fatalf("%s: got allowed=%v reason=%q, want allowed=%v reason=%q", tc.name, d.Allowed, d.Reason, tc.allow, tc.reason)
		}
	}
}

func TestDecideIsPure(t *testing.T) {
	ops := []Operation{OpPromote, OpDemote, OpKick, OpMute, OpUnmute, OpClear, OpDelete, OpMassBlock, OpReadLogs}
	for _, op := range ops {
		for a := Member; a <= SuperOwner; a++ {
			for tr := Member; tr <= SuperOwner; tr++ {
				for req := Member; req <= SuperOwner; req++ {
					in := Request{Op: op, Actor: a, Target: tr, Requested: req}
					if Decide(in) != Decide(in) {
						t.Fatalf("decision not stable for %+v", in)
					}
				}
			}
		}
	}
}

func TestEqualRankAlwaysDenied(t *testing.T) {
	for op := range needsDominance {
		for r := Member; r <= SuperOwner; r++ {
			d := Decide(Request{Op: op, Actor: r, Target: r, Requested: Moderator})
			if d.Allowed || d.Reason != ReasonEqualRank {
				t.Fatalf("decide(%d, %d, %s) = %+v, want equal-rank", r, r, op, d)
			}
		}
	}
}

func TestPromoteCeiling(t *testing.T) {
	ceilings := map[Role]Role{Admin: Moderator, Owner: Owner, SuperOwner: SuperOwner}
	for actor, ceiling := range ceilings {
		for target := Member; target < actor; target++ {
			for requested := Role(-1); requested <= SuperOwner+1; requested++ {
				d := Decide(Request{Op: OpPromote, Actor: actor, Target: target, Requested: requested})
				want := requested >= Moderator && requested <= ceiling
				if d.Allowed != want {
					t.Fatalf("promote actor=%d target=%d requested=%d: allowed=%v want %v (%s)", actor, target, requested, d.Allowed, want, d.Reason)
				}
			}
		}
	}
}

func TestAllowed(t *testing.T) {
	if got := Allowed(Member); len(got) != 1 || got[0] != OpReport {
		t.Fatalf("member operations: %v", got)
	}
	if got := Allowed(Moderator); len(got) != 7 {
		t.Fatalf("moderator operations: %v", got)
	}
	if got := Allowed(Admin); len(got) != len(operationOrder) {
		t.Fatalf("admin operations: %v", got)
	}
}

func TestParse(t *testing.T) {
	if r, err := Parse("3"); err != nil || r != Owner {
		t.Fatalf("Parse(3) = %v, %v", r, err)
	}
	if r, err := Parse(" Moderator "); err != nil || r != Moderator {
		t.Fatalf("Parse(moderator) = %v, %v", r, err)
	}
	if _, err := Parse("7"); err == nil {
		t.Fatal("expected invalid role error")
	}
	if SuperOwner.String() != "super-owner" || Role(9).String() != "role(9)" {
		t.Fatalf("unexpected names: %s %s", SuperOwner, Role(9))
	}
}

func TestNeedsDominance(t *testing.T) {
	for op, want := range map[Operation]bool{
		OpClear: true, OpMassBlock: true, OpKick: true,
		OpDelete: false, OpReport: false, OpReadLogs: false,
	} {
		if got := NeedsDominance(op); got != want {
			t.Fatalf("NeedsDominance(%s) = %v, want %v", op, got, want)
		}
	}
}
