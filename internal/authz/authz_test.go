package authz

import (
	"testing"
	"time"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

var (
	owner = &domain.User{ID: 1, Username: "0000-0001-0000-0001"}
	other = &domain.User{ID: 2, Username: "0000-0002-0000-0002"}
	admin = &domain.User{ID: 3, Username: "0000-0003-0000-0003", Roles: []domain.UserRole{domain.RoleAdmin}}
)

func privateResource() Resource {
	id := owner.ID
	return Resource{URN: "tmp:9b", Private: true, CreatedByID: &id}
}

func publicResource() Resource {
	id := owner.ID
	return Resource{URN: "urn:mavedb:00000001-a-1", Private: false, CreatedByID: &id, Published: true}
}

func TestDecideRead(t *testing.T) {
	tests := []struct {
		name       string
		user       *domain.User
		res        Resource
		allowed    bool
		wantHidden bool
	}{
		{"anonymous reads public", nil, publicResource(), true, false},
		{"other reads public", other, publicResource(), true, false},
		{"owner reads private", owner, privateResource(), true, false},
		{"admin reads private", admin, privateResource(), true, false},
		{"other denied private as hidden", other, privateResource(), false, true},
		{"anonymous denied private as hidden", nil, privateResource(), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.user, tt.res, ActionRead)
			if d.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v", d.Allowed, tt.allowed)
			}
			if !d.Allowed && d.Hidden != tt.wantHidden {
				t.Errorf("Hidden = %v, want %v", d.Hidden, tt.wantHidden)
			}
		})
	}
}

func TestDecideMutations(t *testing.T) {
	for _, action := range []Action{ActionUpdate, ActionAddScoreData, ActionAddCalibration, ActionPublish} {
		t.Run(string(action), func(t *testing.T) {
			if d := Decide(owner, privateResource(), action); !d.Allowed {
				t.Errorf("owner should be allowed: %+v", d)
			}
			if d := Decide(admin, privateResource(), action); !d.Allowed {
				t.Errorf("admin should be allowed: %+v", d)
			}
			if d := Decide(other, privateResource(), action); d.Allowed || !d.Hidden {
				t.Errorf("non-owner on private should be hidden denial: %+v", d)
			}
			if d := Decide(other, publicResource(), action); d.Allowed || d.Hidden {
				t.Errorf("non-owner on public should be plain denial: %+v", d)
			}
		})
	}
}

func TestDecideDelete(t *testing.T) {
	if d := Decide(owner, privateResource(), ActionDelete); !d.Allowed {
		t.Errorf("owner may delete an unpublished entity: %+v", d)
	}
	if d := Decide(owner, publicResource(), ActionDelete); d.Allowed {
		t.Error("published entities are permanent for regular users")
	}
	if d := Decide(admin, publicResource(), ActionDelete); !d.Allowed {
		t.Errorf("admin may delete a published entity: %+v", d)
	}
	if d := Decide(other, privateResource(), ActionDelete); d.Allowed || !d.Hidden {
		t.Errorf("non-owner delete on private should be hidden denial: %+v", d)
	}
}

func TestDecideAddRole(t *testing.T) {
	if d := Decide(admin, publicResource(), ActionAddRole); !d.Allowed {
		t.Errorf("admin may manage roles: %+v", d)
	}
	if d := Decide(owner, publicResource(), ActionAddRole); d.Allowed {
		t.Error("role management is admin only")
	}
}

func TestDecideCollectionTiers(t *testing.T) {
	withRole := func(role domain.CollectionRole) Resource {
		res := privateResource()
		res.CreatedByID = nil
		res.CollectionRole = role
		return res
	}

	t.Run("viewer", func(t *testing.T) {
		res := withRole(domain.CollectionViewer)
		if d := Decide(other, res, ActionRead); !d.Allowed {
			t.Errorf("viewer should read a private collection: %+v", d)
		}
		for _, action := range []Action{ActionUpdate, ActionAddExperiment, ActionAddScoreSet} {
			if d := Decide(other, res, action); d.Allowed {
				t.Errorf("viewer must not %s", action)
			}
		}
	})

	t.Run("editor", func(t *testing.T) {
		res := withRole(domain.CollectionEditor)
		for _, action := range []Action{ActionRead, ActionUpdate, ActionAddExperiment, ActionAddScoreSet, ActionAddScoreData} {
			if d := Decide(other, res, action); !d.Allowed {
				t.Errorf("editor should be allowed %s: %+v", action, d)
			}
		}
		for _, action := range []Action{ActionAddRole, ActionChangeRank, ActionAddBadge} {
			if d := Decide(other, res, action); d.Allowed {
				t.Errorf("editor must not %s", action)
			}
		}
	})

	t.Run("collection admin", func(t *testing.T) {
		res := withRole(domain.CollectionAdmin)
		for _, action := range []Action{ActionRead, ActionUpdate, ActionAddRole, ActionChangeRank} {
			if d := Decide(other, res, action); !d.Allowed {
				t.Errorf("collection admin should be allowed %s: %+v", action, d)
			}
		}
		if d := Decide(other, res, ActionAddBadge); d.Allowed {
			t.Error("badges are platform-admin only")
		}
	})

	t.Run("no membership", func(t *testing.T) {
		res := withRole("")
		if d := Decide(other, res, ActionRead); d.Allowed || !d.Hidden {
			t.Errorf("non-member read on private should be hidden denial: %+v", d)
		}
		if d := Decide(admin, res, ActionAddBadge); !d.Allowed {
			t.Errorf("platform admin may add badges: %+v", d)
		}
		if d := Decide(admin, res, ActionChangeRank); !d.Allowed {
			t.Errorf("platform admin may change ranks: %+v", d)
		}
	})
}

func TestContributorCountsAsOwner(t *testing.T) {
	res := privateResource()
	res.CreatedByID = nil
	res.Contributors = []domain.Contributor{{ORCIDID: other.Username}}

	if d := Decide(other, res, ActionRead); !d.Allowed {
		t.Errorf("contributor should read a private entity: %+v", d)
	}
	if d := Decide(owner, res, ActionRead); d.Allowed {
		t.Error("non-contributor should not read a private entity")
	}
}

func TestResourceAdapters(t *testing.T) {
	now := time.Now()
	id := int64(7)

	s := &domain.ScoreSet{URN: "urn:mavedb:00000001-a-1", Private: false, CreatedByID: &id, PublishedDate: &now}
	res := ScoreSetResource(s)
	if !res.Published || res.Private || res.URN != s.URN {
		t.Errorf("unexpected score set resource %+v", res)
	}

	e := &domain.Experiment{URN: "tmp:abc", Private: true, CreatedByID: &id}
	if r := ExperimentResource(e); r.Published || !r.Private {
		t.Errorf("unexpected experiment resource %+v", r)
	}

	es := &domain.ExperimentSet{URN: "tmp:def", Private: true, CreatedByID: &id}
	if r := ExperimentSetResource(es); r.Published || !r.Private {
		t.Errorf("unexpected experiment set resource %+v", r)
	}
}
