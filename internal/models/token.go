package models

import "time"

// RefreshToken stores the hash of an issued refresh token so it can be
// rotated and revoked.
type RefreshToken struct {
	ID                uint      `gorm:"primaryKey"`
	TokenID           string    `gorm:"uniqueIndex"` // jti
	UserIDRef         string    `gorm:"index"`       // User.UserID
	TokenHash         string    `gorm:"uniqueIndex"`
	ExpiresAt         time.Time `gorm:"index"`
	RevokedAt         *time.Time
	ReplacedByTokenID *string
	CreatedAt         time.Time
}

// Usable reports whether the token may still be exchanged at now.
func (t RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
