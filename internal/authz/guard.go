// Package authz decides whether an actor may perform an action on a team,
// project or issue. Callers load the facts (team lead, membership, issue
// parties) and the guard evaluates them; it never touches storage.
package authz

import "github.com/yakoovad/flowboard/internal/model"

type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// DenyReason is only meaningful when the decision is Deny.
type DenyReason int

const (
	ReasonNone DenyReason = iota
	ReasonUnknownAction
	ReasonNotTeamLead
	ReasonNotTeamMember
	ReasonNotIssueParty
	ReasonNotIssueHandler
	ReasonRoleRequired
)

func (r DenyReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUnknownAction:
		return "unknown action"
	case ReasonNotTeamLead:
		return "actor is not the team lead"
	case ReasonNotTeamMember:
		return "actor is not a team member"
	case ReasonNotIssueParty:
		return "actor is not the reporter, assignee or team lead"
	case ReasonNotIssueHandler:
		return "actor is not the assignee or team lead"
	case ReasonRoleRequired:
		return "actor role is not allowed"
	default:
		return "unknown"
	}
}

type Action string

const (
	ActionTeamCreate        Action = "team/create"
	ActionTeamUpdate        Action = "team/update"
	ActionTeamDelete        Action = "team/delete"
	ActionTeamManageMembers Action = "team/members"

	ActionProjectCreate Action = "project/create"
	ActionProjectUpdate Action = "project/update"
	ActionProjectDelete Action = "project/delete"
	ActionProjectCancel Action = "project/cancel"
	ActionProjectView   Action = "project/view"

	ActionIssueUpdate Action = "issue/update"
	ActionIssueMove   Action = "issue/move"
	ActionIssueDelete Action = "issue/delete"

	ActionUserChangeRole Action = "user/change-role"
)

// TeamFacts describes the team that owns the target.
type TeamFacts struct {
	LeadID        int64
	ActorIsMember bool
}

type IssueFacts struct {
	ReporterID int64
	AssigneeID *int64
}

type Resource struct {
	Team  TeamFacts
	Issue *IssueFacts
}

type Result struct {
	Decision Decision
	Reason   DenyReason
}

func (r Result) Allowed() bool {
	return r.Decision == Allow
}

func allow() Result {
	return Result{Decision: Allow}
}

func deny(reason DenyReason) Result {
	return Result{Decision: Deny, Reason: reason}
}

type rule func(actor model.Actor, res Resource) Result

type Guard struct {
	rules map[Action]rule
}

func NewGuard() *Guard {
	leadOnly := func(actor model.Actor, res Resource) Result {
		if IsTeamLead(actor, res.Team) {
			return allow()
		}
		return deny(ReasonNotTeamLead)
	}

	return &Guard{
		rules: map[Action]rule{
			ActionTeamCreate:        leadOnly,
			ActionTeamUpdate:        leadOnly,
			ActionTeamDelete:        leadOnly,
			ActionTeamManageMembers: leadOnly,

			ActionProjectCreate: leadOnly,
			ActionProjectUpdate: leadOnly,
			ActionProjectDelete: leadOnly,
			ActionProjectCancel: leadOnly,
			ActionProjectView: func(actor model.Actor, res Resource) Result {
				if IsTeamMember(actor, res.Team) {
					return allow()
				}
				return deny(ReasonNotTeamMember)
			},

			ActionIssueUpdate: func(actor model.Actor, res Resource) Result {
				if IsIssueParty(actor, res) {
					return allow()
				}
				return deny(ReasonNotIssueParty)
			},
			ActionIssueMove: func(actor model.Actor, res Resource) Result {
				if IsIssueHandler(actor, res) {
					return allow()
				}
				return deny(ReasonNotIssueHandler)
			},
			ActionIssueDelete: leadOnly,

			ActionUserChangeRole: func(actor model.Actor, _ Resource) Result {
				if actor.Role == model.RoleTeamLead {
					return allow()
				}
				return deny(ReasonRoleRequired)
			},
		},
	}
}

// CanPerform evaluates action for actor against res. Unknown actions are
// denied.
func (g *Guard) CanPerform(actor model.Actor, action Action, res Resource) Result {
	r, ok := g.rules[action]
	if !ok {
		return deny(ReasonUnknownAction)
	}
	return r(actor, res)
}

func IsTeamLead(actor model.Actor, team TeamFacts) bool {
	return team.LeadID != 0 && actor.UserID == team.LeadID
}

// IsTeamMember treats the lead as a member even if the membership row is
// missing.
func IsTeamMember(actor model.Actor, team TeamFacts) bool {
	return team.ActorIsMember || IsTeamLead(actor, team)
}

// IsIssueParty reports whether actor reported, is assigned to, or leads the
// team owning the issue.
func IsIssueParty(actor model.Actor, res Resource) bool {
	if res.Issue != nil && res.Issue.ReporterID == actor.UserID {
		return true
	}
	return IsIssueHandler(actor, res)
}

// IsIssueHandler reports whether actor is the assignee or the team lead.
func IsIssueHandler(actor model.Actor, res Resource) bool {
	if res.Issue != nil && res.Issue.AssigneeID != nil && *res.Issue.AssigneeID == actor.UserID {
		return true
	}
	return IsTeamLead(actor, res.Team)
}
