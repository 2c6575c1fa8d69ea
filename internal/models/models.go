package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleEditor:
		return true
	}
	return false
}

// Account is a registered user with a prepaid credit balance.
type Account struct {
	ID                    string     `db:"user_id" json:"id"`
	Email                 string     `db:"email" json:"email"`
	DisplayName           string     `db:"display_name" json:"display_name,omitempty"`
	Role                  Role       `db:"role" json:"role"`
	Credits               int        `db:"current_credits" json:"credits"`
	SubscriptionType      string     `db:"subscription_type" json:"subscription_type"`
	SubscriptionExpiresAt *time.Time `db:"subscription_expires_at" json:"subscription_expires_at,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// GuestSession is the balance of an anonymous caller identified by a client-held token.
type GuestSession struct {
	ID        string    `db:"guest_id" json:"id"`
	Credits   int       `db:"credits" json:"credits"`
	LastSeen  time.Time `db:"last_seen" json:"last_seen"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Tool struct {
	ID             int64     `db:"tool_id" json:"id"`
	Key            string    `db:"tool_key" json:"key"`
	Name           string    `db:"name" json:"name"`
	BaseCreditCost int       `db:"base_credit_cost" json:"base_credit_cost"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// GenerationRecord is the audit entry of one generation attempt.
// Exactly one of UserID and GuestID is set.
type GenerationRecord struct {
	ID              string     `db:"history_id" json:"id"`
	UserID          *string    `db:"user_id" json:"user_id,omitempty"`
	GuestID         *string    `db:"guest_id" json:"guest_id,omitempty"`
	ToolID          *int64     `db:"tool_id" json:"tool_id,omitempty"`
	ToolKey         *string    `db:"tool_key" json:"tool_key,omitempty"`
	Prompt          string     `db:"prompt" json:"prompt"`
	OutputImages    StringList `db:"output_images" json:"output_images"`
	CreditsUsed     int        `db:"credits_used" json:"credits_used"`
	Model           string     `db:"api_model_used" json:"model"`
	GenerationCount int        `db:"generation_count" json:"generation_count"`
	ElapsedMS       int64      `db:"elapsed_ms" json:"elapsed_ms"`
	ErrorMessage    *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

type GalleryItem struct {
	ImageURL  string    `db:"image_url" json:"image_url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type CreditPackage struct {
	ID              int64     `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Description     string    `db:"description" json:"description"`
	Currency        string    `db:"currency" json:"currency"`
	PriceMinorUnits int       `db:"price_minor_units" json:"price_minor_units"`
	Credits         int       `db:"credits" json:"credits"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

type ConfigValueType string

const (
	ConfigString  ConfigValueType = "string"
	ConfigNumber  ConfigValueType = "number"
	ConfigBoolean ConfigValueType = "boolean"
	ConfigJSON    ConfigValueType = "json"
)

type SystemConfig struct {
	Key         string          `db:"config_key" json:"key"`
	Value       string          `db:"config_value" json:"value"`
	ValueType   ConfigValueType `db:"value_type" json:"value_type"`
	Description string          `db:"description" json:"description"`
	IsPublic    bool            `db:"is_public" json:"is_public"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// StringList is stored as a JSON array column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan string list: unsupported type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan string list: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}
