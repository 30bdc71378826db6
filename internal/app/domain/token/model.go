// Package token defines the semi-fungible token domain model. A token carries
// a numeric value inside a slot; tokens sharing a slot are value-fungible with
// each other.
package token

import "time"

// Token is a single value-bearing unit. Every token has exactly one owner and
// one slot, and its value is never negative.
type Token struct {
	ID        string
	SlotID    string
	Owner     string
	Value     int64
	Operator  string // identity approved for this token, empty if none
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot is a fungibility category. Value may only move between tokens in the
// same slot.
type Slot struct {
	ID              string
	Name            string
	MarketActive    bool
	RoyaltyReceiver string
	RoyaltyBps      int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValueAllowance lets a grantee move up to Remaining value units out of a
// specific token. Unlimited allowances do not decrement on use.
type ValueAllowance struct {
	TokenID   string
	Grantee   string
	Remaining int64
	Unlimited bool
	UpdatedAt time.Time
}
