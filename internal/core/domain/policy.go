package domain

import (
	"errors"
	"fmt"
	"time"
)

// PolicyName identifies a limiter class. Lookups are exact and case-sensitive.
type PolicyName string

const (
	PolicyContactForm    PolicyName = "contactForm"
	PolicyJobApplication PolicyName = "jobApplication"
	PolicyAdminLogin     PolicyName = "adminLogin"
	PolicyFileUpload     PolicyName = "fileUpload"
	PolicyEmailSend      PolicyName = "emailSend"
	PolicyGeneralAPI     PolicyName = "generalApi"
)

// ErrInvalidPolicy indicates a policy definition that can never admit a request.
var ErrInvalidPolicy = errors.New("invalid rate limit policy")

// Policy is the quota attached to a limiter class.
type Policy struct {
	Name      PolicyName
	MaxEvents int
	Window    time.Duration
	Message   string
}

// Validate ensures the policy quota and window are usable.
func (p Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPolicy)
	}
	if p.MaxEvents <= 0 {
		return fmt.Errorf("%w: %s max events must be positive", ErrInvalidPolicy, p.Name)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: %s window must be positive", ErrInvalidPolicy, p.Name)
	}
	return nil
}

// PolicyTable maps limiter classes to their quotas. It is built once and never mutated.
type PolicyTable struct {
	policies map[PolicyName]Policy
	order    []PolicyName
}

// NewPolicyTable validates and indexes the provided policies.
func NewPolicyTable(policies ...Policy) (*PolicyTable, error) {
	table := &PolicyTable{
		policies: make(map[PolicyName]Policy, len(policies)),
		order:    make([]PolicyName, 0, len(policies)),
	}

	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, exists := table.policies[p.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate policy %s", ErrInvalidPolicy, p.Name)
		}
		table.policies[p.Name] = p
		table.order = append(table.order, p.Name)
	}

	return table, nil
}

// DefaultPolicies returns the limiter classes protecting the public mutation endpoints.
func DefaultPolicies() []Policy {
	return []Policy{
		{
			Name:      PolicyContactForm,
			MaxEvents: 5,
			Window:    time.Hour,
			Message:   "Too many contact form submissions. Please try again later.",
		},
		{
			Name:      PolicyJobApplication,
			MaxEvents: 3,
			Window:    time.Hour,
			Message:   "Too many job applications. Please try again later.",
		},
		{
			Name:      PolicyAdminLogin,
			MaxEvents: 5,
			Window:    15 * time.Minute,
			Message:   "Too many login attempts. Please try again in 15 minutes.",
		},
		{
			Name:      PolicyFileUpload,
			MaxEvents: 10,
			Window:    time.Hour,
			Message:   "Too many file uploads. Please try again later.",
		},
		{
			Name:      PolicyEmailSend,
			MaxEvents: 20,
			Window:    time.Hour,
			Message:   "Too many emails sent. Please try again later.",
		},
		{
			Name:      PolicyGeneralAPI,
			MaxEvents: 100,
			Window:    15 * time.Minute,
			Message:   "Too many requests. Please slow down.",
		},
	}
}

// DefaultPolicyTable returns the table built from DefaultPolicies.
func DefaultPolicyTable() *PolicyTable {
	table, err := NewPolicyTable(DefaultPolicies()...)
	if err != nil {
		panic(err)
	}
	return table
}

// Lookup returns the policy registered under name.
func (t *PolicyTable) Lookup(name PolicyName) (Policy, bool) {
	if t == nil {
		return Policy{}, false
	}
	p, ok := t.policies[name]
	return p, ok
}

// Policies returns every policy in registration order.
func (t *PolicyTable) Policies() []Policy {
	if t == nil {
		return nil
	}
	out := make([]Policy, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.policies[name])
	}
	return out
}
