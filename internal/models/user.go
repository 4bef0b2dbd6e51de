package models

import "time"

// User represents a care manager or family member account
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Senior is the profile of a person receiving care
type Senior struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Assignment links a care manager to a senior they look after
type Assignment struct {
	CareManagerID int64     `json:"care_manager_id"`
	SeniorID      string    `json:"senior_id"`
	AssignedAt    time.Time `json:"assigned_at"`
}

// Token is a signed bearer credential handed out at login
type Token struct {
	Value     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired checks if the token has expired
func (t *Token) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}
