// Package plan defines subscription plans: the pricing and feature tiers a
// tenant can be attached to. Plans live in the public partition and are
// read-mostly reference data.
package plan

import (
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/tenantdesk/internal/validation"
)

// Errors
var (
	ErrPlanNotFound = errors.New("plan: not found")
	ErrCodeTaken    = errors.New("plan: code already exists")
	ErrUnknownCode  = errors.New("plan: unknown code")
)

// Code identifies a pricing tier.
type Code string

const (
	CodeFree       Code = "free"
	CodeStandard   Code = "standard"
	CodeBusiness   Code = "business"
	CodeEnterprise Code = "enterprise"
)

var codeLabels = map[Code]string{
	CodeFree:       "Free",
	CodeStandard:   "Standard",
	CodeBusiness:   "Business",
	CodeEnterprise: "Enterprise",
}

// Codes returns the known plan codes, cheapest tier first.
func Codes() []Code {
	return []Code{CodeFree, CodeStandard, CodeBusiness, CodeEnterprise}
}

// Valid reports whether c is a known plan code.
func (c Code) Valid() bool {
	_, ok := codeLabels[c]
	return ok
}

// ParseCode returns the Code for s or ErrUnknownCode.
func ParseCode(s string) (Code, error) {
	c := Code(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCode, s)
	}
	return c, nil
}

// Plan is one pricing tier. A nil limit means unlimited.
type Plan struct {
	ID               int64     `json:"id"`
	Code             Code      `json:"code" validate:"oneof=free standard business enterprise"`
	PriceNPR         int       `json:"price_npr" validate:"gte=0"`
	IsActive         bool      `json:"is_active"`
	MaxUsers         int       `json:"max_users" validate:"gt=0"`
	MaxLeadForms     *int      `json:"max_lead_forms" validate:"omitempty,gt=0"`
	StorageGBPerUser int       `json:"storage_gb_per_user" validate:"gt=0"`
	BulkEmailLimit   *int      `json:"bulk_email_limit" validate:"omitempty,gt=0"`
	BulkSMS          bool      `json:"bulk_sms"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

var messages = validation.Messages{
	"price_npr.gte":          "Price cannot be negative",
	"max_users.gt":           "Max users must be greater than 0",
	"storage_gb_per_user.gt": "Storage must be greater than 0",
	"code.oneof":             "Code must be one of free, standard, business, enterprise",
	"max_lead_forms.gt":      "Max lead forms must be greater than 0 or unlimited",
	"bulk_email_limit.gt":    "Bulk email limit must be greater than 0 or unlimited",
}

// Validate reports every code and limit violation at once.
func (p *Plan) Validate() error {
	return validation.Struct(p, messages).Err()
}

// DisplayName returns the human label for the plan's code.
func (p *Plan) DisplayName() string {
	if label, ok := codeLabels[p.Code]; ok {
		return label
	}
	return string(p.Code)
}

// IsEnabled reports whether the plan may be assigned to new tenants.
func (p *Plan) IsEnabled() bool {
	return p.IsActive
}

func (p *Plan) String() string {
	return fmt.Sprintf("%s (NPR %d)", p.DisplayName(), p.PriceNPR)
}

// Limit formats an optional limit for display.
func Limit(v *int) string {
	if v == nil {
		return "unlimited"
	}
	return fmt.Sprintf("%d", *v)
}
