package identity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/DukeRupert/hireready/internal/domain"
)

// Webhook event types.
const (
	EventUserCreated           = "user.created"
	EventUserUpdated           = "user.updated"
	EventUserDeleted           = "user.deleted"
	EventSessionCreated        = "session.created"
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionUpdated   = "subscription.updated"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventSubscriptionDeleted   = "subscription.deleted"
)

// Event is the envelope of a provider webhook.
type Event struct {
	Type   string          `json:"type"`
	Object string          `json:"object"`
	Data   json.RawMessage `json:"data"`
	// Timestamp is milliseconds since the epoch.
	Timestamp int64 `json:"timestamp"`
}

// ParseEvent decodes a webhook body.
func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("parse webhook event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("webhook event has no type")
	}
	return &ev, nil
}

// OccurredAt returns the event time, or nil when the payload has none.
func (e *Event) OccurredAt() *time.Time {
	if e.Timestamp <= 0 {
		return nil
	}
	t := time.UnixMilli(e.Timestamp).UTC()
	return &t
}

type emailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// UserData is the user object carried by user.* events.
type UserData struct {
	ID                    string         `json:"id"`
	FirstName             *string        `json:"first_name"`
	LastName              *string        `json:"last_name"`
	Username              *string        `json:"username"`
	ImageURL              string         `json:"image_url"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	EmailAddresses        []emailAddress `json:"email_addresses"`
}

// PrimaryEmail returns the primary address, or the first one listed.
func (u UserData) PrimaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// Profile returns the most complete profile the payload supports.
// Reconciliation degrades further when a tier fails.
func (u UserData) Profile() domain.ExternalProfile {
	email := u.PrimaryEmail()
	if email == "" {
		return domain.MinimalProfile{ExternalID: u.ID}
	}
	return domain.FullProfile{
		ExternalID: u.ID,
		Email:      email,
		FirstName:  deref(u.FirstName),
		LastName:   deref(u.LastName),
		Username:   deref(u.Username),
		ImageURL:   u.ImageURL,
	}
}

// UserData decodes the data of a user.* event.
func (e *Event) UserData() (*UserData, error) {
	var u UserData
	if err := json.Unmarshal(e.Data, &u); err != nil {
		return nil, fmt.Errorf("parse user data: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("user data has no id")
	}
	return &u, nil
}

// SessionData is the session object carried by session.created.
type SessionData struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

// SessionData decodes the data of a session.* event.
func (e *Event) SessionData() (*SessionData, error) {
	var s SessionData
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return nil, fmt.Errorf("parse session data: %w", err)
	}
	if s.UserID == "" {
		return nil, fmt.Errorf("session data has no user_id")
	}
	return &s, nil
}

type subscriptionPayer struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type subscriptionPlan struct {
	Slug string `json:"slug"`
}

type subscriptionItem struct {
	Status      string           `json:"status"`
	Plan        subscriptionPlan `json:"plan"`
	PeriodStart int64            `json:"period_start"`
	PeriodEnd   int64            `json:"period_end"`
}

// SubscriptionData is the subscription object carried by subscription.*
// events.
type SubscriptionData struct {
	ID     string             `json:"id"`
	Status string             `json:"status"`
	Payer  subscriptionPayer  `json:"payer"`
	Items  []subscriptionItem `json:"items"`
}

// SubscriptionData decodes the data of a subscription.* event.
func (e *Event) SubscriptionData() (*SubscriptionData, error) {
	var s SubscriptionData
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return nil, fmt.Errorf("parse subscription data: %w", err)
	}
	if s.Payer.UserID == "" {
		return nil, fmt.Errorf("subscription data has no payer user_id")
	}
	return &s, nil
}

// inactiveStatuses collapse to a cancellation.
var inactiveStatuses = map[string]bool{
	"canceled":  true,
	"cancelled": true,
	"ended":     true,
	"abandoned": true,
	"expired":   true,
}

// Change is a subscription event reduced to what a transition needs.
type Change struct {
	ExternalUserID string
	Email          string
	PlanKey        domain.PlanKey
	Cancel         bool
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	EventAt        *time.Time
}

// Change reduces a subscription.* event. The plan is the highest-ranked
// plan among active items; past_due and similar states count as active.
func (e *Event) Change() (*Change, error) {
	s, err := e.SubscriptionData()
	if err != nil {
		return nil, err
	}

	c := &Change{
		ExternalUserID: s.Payer.UserID,
		Email:          s.Payer.Email,
		EventAt:        e.OccurredAt(),
	}

	if e.Type == EventSubscriptionCancelled || e.Type == EventSubscriptionDeleted ||
		inactiveStatuses[strings.ToLower(s.Status)] {
		c.Cancel = true
		c.PlanKey = domain.PlanFree
		return c, nil
	}

	var slugs []string
	var best *subscriptionItem
	bestPlan := domain.PlanFree
	for i := range s.Items {
		item := &s.Items[i]
		if inactiveStatuses[strings.ToLower(item.Status)] {
			continue
		}
		slugs = append(slugs, item.Plan.Slug)
		if k := domain.HighestPlan([]string{item.Plan.Slug}); best == nil || k.Rank() > bestPlan.Rank() {
			best, bestPlan = item, k
		}
	}
	c.PlanKey = domain.HighestPlan(slugs)

	if best != nil && best.PeriodStart > 0 && best.PeriodEnd > best.PeriodStart {
		start := time.UnixMilli(best.PeriodStart).UTC()
		end := time.UnixMilli(best.PeriodEnd).UTC()
		c.PeriodStart, c.PeriodEnd = &start, &end
	}
	return c, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
