package models

import "time"

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

type SubscriptionTier string

const (
	TierStandard SubscriptionTier = "standard"
	TierPro      SubscriptionTier = "pro"
)

type User struct {
	ID            string
	Email         string
	PasswordHash  []byte
	DisplayName   string
	Role          UserRole
	Status        UserStatus
	Tier          SubscriptionTier
	CreditBalance int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
