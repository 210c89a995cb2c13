package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/lifecycle"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	testCases := []struct {
		name     string
		resource Resource
		action   Action
		role     lifecycle.Role
		allowed  bool
	}{
		{"anyone lists campaigns", Campaigns, Read, Anonymous, true},
		{"student creates campaign", Campaigns, Create, lifecycle.RoleStudent, true},
		{"admin creates campaign", Campaigns, Create, lifecycle.RoleAdmin, true},
		{"donor cannot create campaign", Campaigns, Create, lifecycle.RoleDonor, false},
		{"company cannot create campaign", Campaigns, Create, lifecycle.RoleCompany, false},
		{"only admin approves", Campaigns, Approve, lifecycle.RoleStudent, false},
		{"admin approves", Campaigns, Approve, lifecycle.RoleAdmin, true},
		{"only students invite", Referrals, Create, lifecycle.RoleAdmin, false},
		{"anyone accepts referral", Referrals, Accept, Anonymous, true},
		{"donor donates", Payments, Create, lifecycle.RoleDonor, true},
		{"student cannot donate", Payments, Create, lifecycle.RoleStudent, false},
		{"only admin processes", Payments, Process, lifecycle.RoleDonor, false},
		{"admin surface", Admin, Manage, lifecycle.RoleAdmin, true},
		{"admin surface denied", Admin, Manage, lifecycle.RoleStudent, false},
		{"anonymous has no profile", Auth, Profile, Anonymous, false},
		{"unknown rule denied", Resource("ledger"), Read, lifecycle.RoleAdmin, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, p.Allow(tc.resource, tc.action, tc.role))
		})
	}
}

func TestCheckKinds(t *testing.T) {
	p := DefaultPolicy()

	err := p.Check(Campaigns, Create, Anonymous)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))

	err = p.Check(Campaigns, Create, lifecycle.RoleDonor)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	assert.NoError(t, p.Check(Campaigns, Create, lifecycle.RoleStudent))
}

func TestGrantExtends(t *testing.T) {
	p := NewPolicy().Grant(Companies, Create, lifecycle.RoleCompany)
	assert.True(t, p.Allow(Companies, Create, lifecycle.RoleCompany))
	assert.False(t, p.Allow(Companies, Create, lifecycle.RoleAdmin))
}
