package config

import (
	"context"
	"strings"
)

// UnverifiedPolicy decides what a successful magic link does for an account
// whose email address has not been verified yet.
type UnverifiedPolicy string

const (
	// UnverifiedPolicyVerify treats the magic link as proof of address ownership.
	UnverifiedPolicyVerify UnverifiedPolicy = "verify"
	// UnverifiedPolicyBlock refuses the login with 403.
	UnverifiedPolicyBlock UnverifiedPolicy = "block"
)

func (p UnverifiedPolicy) Valid() bool {
	return p == UnverifiedPolicyVerify || p == UnverifiedPolicyBlock
}

// EnvDecode implements envconfig.Decoder
func (p *UnverifiedPolicy) EnvDecode(_ context.Context, v string) error {
	*p = UnverifiedPolicy(strings.ToLower(strings.TrimSpace(v)))
	return nil
}

// AccountAdoptionPolicy decides whether an OAuth login may attach to an existing
// local account whose email has not been verified.
type AccountAdoptionPolicy string

const (
	AccountAdoptionReject AccountAdoptionPolicy = "reject"
	AccountAdoptionAdopt  AccountAdoptionPolicy = "adopt"
)

func (p AccountAdoptionPolicy) Valid() bool {
	return p == AccountAdoptionReject || p == AccountAdoptionAdopt
}

// EnvDecode implements envconfig.Decoder
func (p *AccountAdoptionPolicy) EnvDecode(_ context.Context, v string) error {
	*p = AccountAdoptionPolicy(strings.ToLower(strings.TrimSpace(v)))
	return nil
}
