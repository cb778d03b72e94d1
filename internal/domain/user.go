// Package domain contains core business types and interfaces.
//
// This file defines the canonical User and the profile variants the identity
// provider can hand us. The provider owns authentication; we only mirror the
// fields we need, keyed by the provider's stable user ID.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the local canonical identity row.
type User struct {
	ID          uuid.UUID `json:"id"`
	ExternalID  string    `json:"external_id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	DisplayName string    `json:"display_name"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfileTier identifies which reconciliation tier a profile feeds.
type ProfileTier string

const (
	TierFull    ProfileTier = "full"
	TierPartial ProfileTier = "partial"
	TierMinimal ProfileTier = "minimal"
)

// ExternalProfile is one of FullProfile, PartialProfile or MinimalProfile.
// The set is closed: only types in this package implement it.
type ExternalProfile interface {
	ExternalUserID() string
	Tier() ProfileTier
	// Degrade returns the next, less demanding tier built from the same
	// data, or nil when there is nothing left to fall back to.
	Degrade() ExternalProfile
	Validate() error
	profile()
}

// FullProfile is a complete provider user object. Reconciling it updates
// every mirrored column.
type FullProfile struct {
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Username   string `json:"username"`
	ImageURL   string `json:"image_url"`
}

// PartialProfile carries only the external ID and email. Other columns of an
// existing row are left untouched.
type PartialProfile struct {
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
}

// MinimalProfile is what an incomplete webhook payload yields. It creates a
// bare row if none exists; Email may be empty.
type MinimalProfile struct {
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
}

func (FullProfile) profile()    {}
func (PartialProfile) profile() {}
func (MinimalProfile) profile() {}

func (p FullProfile) ExternalUserID() string    { return p.ExternalID }
func (p PartialProfile) ExternalUserID() string { return p.ExternalID }
func (p MinimalProfile) ExternalUserID() string { return p.ExternalID }

func (FullProfile) Tier() ProfileTier    { return TierFull }
func (PartialProfile) Tier() ProfileTier { return TierPartial }
func (MinimalProfile) Tier() ProfileTier { return TierMinimal }

func (p FullProfile) Degrade() ExternalProfile {
	return PartialProfile{ExternalID: p.ExternalID, Email: p.Email}
}

func (p PartialProfile) Degrade() ExternalProfile {
	return MinimalProfile(p)
}

func (MinimalProfile) Degrade() ExternalProfile { return nil }

func (p FullProfile) Validate() error {
	if strings.TrimSpace(p.ExternalID) == "" {
		return NewValidationError("profile.full", "external_id", "External user ID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return NewValidationError("profile.full", "email", "Email is required")
	}
	return nil
}

func (p PartialProfile) Validate() error {
	if strings.TrimSpace(p.ExternalID) == "" {
		return NewValidationError("profile.partial", "external_id", "External user ID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return NewValidationError("profile.partial", "email", "Email is required")
	}
	return nil
}

func (p MinimalProfile) Validate() error {
	if strings.TrimSpace(p.ExternalID) == "" {
		return NewValidationError("profile.minimal", "external_id", "External user ID is required")
	}
	return nil
}

// DisplayName picks "First Last", then the username, then the email.
func (p FullProfile) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name != "" {
		return name
	}
	if u := strings.TrimSpace(p.Username); u != "" {
		return u
	}
	return p.Email
}
