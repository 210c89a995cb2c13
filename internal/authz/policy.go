// Package authz decides which roles may call which operation.
package authz

import (
	"fmt"

	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/lifecycle"
)

type Resource string

const (
	Auth        Resource = "auth"
	OTP         Resource = "otp"
	Campaigns   Resource = "campaigns"
	Referrals   Resource = "referrals"
	Payments    Resource = "payments"
	Receipts    Resource = "receipts"
	Milestones  Resource = "milestones"
	Shoutouts   Resource = "shoutouts"
	Companies   Resource = "companies"
	Partnership Resource = "partnership"
	Highlights  Resource = "highlights"
	Admin       Resource = "admin"
	Static      Resource = "static"
)

type Action string

const (
	Read    Action = "read"
	Create  Action = "create"
	Update  Action = "update"
	Delete  Action = "delete"
	Start   Action = "start"
	Approve Action = "approve"
	Process Action = "process"
	Refund  Action = "refund"
	Upload  Action = "upload"
	Accept  Action = "accept"
	Manage  Action = "manage"
	Profile Action = "profile"
	Public  Action = "public"
)

// Anonymous is the role of callers without a token.
const Anonymous lifecycle.Role = "anonymous"

var (
	everyone      = []lifecycle.Role{Anonymous, lifecycle.RoleStudent, lifecycle.RoleAdmin, lifecycle.RoleCompany, lifecycle.RoleDonor}
	authenticated = []lifecycle.Role{lifecycle.RoleStudent, lifecycle.RoleAdmin, lifecycle.RoleCompany, lifecycle.RoleDonor}
	studentAdmin  = []lifecycle.Role{lifecycle.RoleStudent, lifecycle.RoleAdmin}
	donorAdmin    = []lifecycle.Role{lifecycle.RoleDonor, lifecycle.RoleAdmin}
	adminOnly     = []lifecycle.Role{lifecycle.RoleAdmin}
	studentOnly   = []lifecycle.Role{lifecycle.RoleStudent}
)

type rule struct {
	resource Resource
	action   Action
}

// Policy maps (resource, action) to the roles allowed to perform it.
// Anything not listed is denied.
type Policy struct {
	rules map[rule]map[lifecycle.Role]bool
}

func NewPolicy() *Policy {
	return &Policy{rules: make(map[rule]map[lifecycle.Role]bool)}
}

// Grant allows roles to perform action on resource.
func (p *Policy) Grant(resource Resource, action Action, roles ...lifecycle.Role) *Policy {
	key := rule{resource, action}
	if p.rules[key] == nil {
		p.rules[key] = make(map[lifecycle.Role]bool)
	}
	for _, r := range roles {
		p.rules[key][r] = true
	}
	return p
}

func (p *Policy) Allow(resource Resource, action Action, role lifecycle.Role) bool {
	return p.rules[rule{resource, action}][role]
}

// Check returns an auth error for anonymous callers and a forbidden error for
// signed-in callers lacking the role.
func (p *Policy) Check(resource Resource, action Action, role lifecycle.Role) error {
	if p.Allow(resource, action, role) {
		return nil
	}
	if role == Anonymous || role == "" {
		return apperr.ErrMissingToken
	}
	return apperr.Forbidden(fmt.Sprintf("role %s may not %s %s", role, action, resource))
}

// DefaultPolicy is the platform's route table. Ownership is enforced by the
// services on top of it.
func DefaultPolicy() *Policy {
	p := NewPolicy()

	p.Grant(Auth, Public, everyone...)
	p.Grant(Auth, Profile, authenticated...)
	p.Grant(OTP, Public, everyone...)

	p.Grant(Campaigns, Read, everyone...)
	p.Grant(Campaigns, Create, studentAdmin...)
	p.Grant(Campaigns, Update, authenticated...)
	p.Grant(Campaigns, Delete, authenticated...)
	p.Grant(Campaigns, Start, studentAdmin...)
	p.Grant(Campaigns, Upload, studentAdmin...)
	p.Grant(Campaigns, Approve, adminOnly...)
	p.Grant(Campaigns, Manage, adminOnly...)

	p.Grant(Referrals, Create, studentOnly...)
	p.Grant(Referrals, Read, authenticated...)
	p.Grant(Referrals, Accept, everyone...)

	p.Grant(Payments, Create, donorAdmin...)
	p.Grant(Payments, Public, everyone...)
	p.Grant(Payments, Read, authenticated...)
	p.Grant(Payments, Process, adminOnly...)
	p.Grant(Payments, Refund, authenticated...)

	p.Grant(Receipts, Read, authenticated...)

	p.Grant(Milestones, Read, everyone...)
	p.Grant(Milestones, Create, studentAdmin...)

	p.Grant(Shoutouts, Read, everyone...)
	p.Grant(Shoutouts, Create, authenticated...)

	p.Grant(Companies, Read, everyone...)
	p.Grant(Companies, Create, adminOnly...)
	p.Grant(Partnership, Public, everyone...)

	p.Grant(Highlights, Read, everyone...)
	p.Grant(Highlights, Create, adminOnly...)
	p.Grant(Highlights, Upload, adminOnly...)

	p.Grant(Admin, Manage, adminOnly...)
	p.Grant(Static, Read, everyone...)

	return p
}
