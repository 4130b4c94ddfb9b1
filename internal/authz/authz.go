// Package authz decides whether a user may perform an action on a dataset
// entity. Denials distinguish invisibility (the caller should see a 404)
// from forbiddenness (a 403).
package authz

import (
	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// Action is a permission-checked operation on a dataset entity.
type Action string

const (
	ActionRead           Action = "read"
	ActionUpdate         Action = "update"
	ActionDelete         Action = "delete"
	ActionPublish        Action = "publish"
	ActionAddExperiment  Action = "add_experiment"
	ActionAddScoreSet    Action = "add_score_set"
	ActionAddScoreData   Action = "add_score_data"
	ActionAddCalibration Action = "add_score_calibration"
	ActionAddBadge       Action = "add_badge"
	ActionAddRole        Action = "add_role"
	ActionChangeRank     Action = "change_rank"
)

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool
	// Hidden is set on denial when the entity's existence must not be
	// revealed to the caller.
	Hidden  bool
	Message string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func denyHidden(message string) Decision {
	return Decision{Hidden: true, Message: message}
}

func deny(message string) Decision {
	return Decision{Message: message}
}

// Resource is the common permission surface of score sets, experiments and
// experiment sets.
type Resource struct {
	URN          string
	Private      bool
	CreatedByID  *int64
	Contributors []domain.Contributor
	// Published reports whether the entity has left the temporary
	// namespace.
	Published bool
	// CollectionRole is the caller's membership tier when the resource is a
	// collection; empty for non-members and non-collection resources.
	CollectionRole domain.CollectionRole
}

// ScoreSetResource adapts a score set for permission checks.
func ScoreSetResource(s *domain.ScoreSet) Resource {
	return Resource{
		URN:          s.URN,
		Private:      s.Private,
		CreatedByID:  s.CreatedByID,
		Contributors: s.Contributors,
		Published:    s.PublishedDate != nil,
	}
}

// ExperimentResource adapts an experiment for permission checks.
func ExperimentResource(e *domain.Experiment) Resource {
	return Resource{
		URN:         e.URN,
		Private:     e.Private,
		CreatedByID: e.CreatedByID,
		Published:   e.PublishedDate != nil,
	}
}

// ExperimentSetResource adapts an experiment set for permission checks.
func ExperimentSetResource(e *domain.ExperimentSet) Resource {
	return Resource{
		URN:         e.URN,
		Private:     e.Private,
		CreatedByID: e.CreatedByID,
		Published:   e.PublishedDate != nil,
	}
}

// Decide evaluates an action by a user (nil for anonymous callers) against a
// resource.
//
// Private entities are invisible to everyone except their owner, their
// contributors, collection members and admins; a denied read on one is
// Hidden. Mutations require ownership, an editor-tier collection role or the
// admin role; structural mutations of published entities are reserved for
// admins. Badge and rank management sit above the editor tier.
func Decide(user *domain.User, res Resource, action Action) Decision {
	admin := user != nil && user.HasRole(domain.RoleAdmin)
	owner := isOwnerOrContributor(user, res)

	switch action {
	case ActionRead:
		if !res.Private || owner || admin || roleAtLeast(res.CollectionRole, domain.CollectionViewer) {
			return allow()
		}
		return denyHidden("score set with URN '" + res.URN + "' not found")

	case ActionUpdate, ActionAddScoreData, ActionAddCalibration, ActionAddExperiment, ActionAddScoreSet:
		if admin {
			return allow()
		}
		if owner || roleAtLeast(res.CollectionRole, domain.CollectionEditor) {
			return allow()
		}
		if res.Private {
			return denyHidden("score set with URN '" + res.URN + "' not found")
		}
		return deny("insufficient permissions for URN '" + res.URN + "'")

	case ActionDelete:
		if admin {
			return allow()
		}
		if res.Published {
			// Published records are permanent for regular users.
			return deny("insufficient permissions for URN '" + res.URN + "'")
		}
		if owner {
			return allow()
		}
		if res.Private {
			return denyHidden("score set with URN '" + res.URN + "' not found")
		}
		return deny("insufficient permissions for URN '" + res.URN + "'")

	case ActionPublish:
		if admin || owner {
			return allow()
		}
		if res.Private {
			return denyHidden("score set with URN '" + res.URN + "' not found")
		}
		return deny("insufficient permissions for URN '" + res.URN + "'")

	case ActionAddBadge:
		if admin {
			return allow()
		}
		return deny("insufficient permissions for URN '" + res.URN + "'")

	case ActionAddRole, ActionChangeRank:
		if admin || roleAtLeast(res.CollectionRole, domain.CollectionAdmin) {
			return allow()
		}
		return deny("insufficient permissions for URN '" + res.URN + "'")
	}

	return deny("unrecognized action " + string(action))
}

// roleAtLeast reports whether a collection role meets a minimum tier.
func roleAtLeast(role, min domain.CollectionRole) bool {
	rank := map[domain.CollectionRole]int{
		domain.CollectionViewer: 1,
		domain.CollectionEditor: 2,
		domain.CollectionAdmin:  3,
	}
	return rank[role] >= rank[min]
}

func isOwnerOrContributor(user *domain.User, res Resource) bool {
	if user == nil {
		return false
	}
	if res.CreatedByID != nil && *res.CreatedByID == user.ID {
		return true
	}
	for _, c := range res.Contributors {
		if c.ORCIDID != "" && c.ORCIDID == user.Username {
			return true
		}
	}
	return false
}
