package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the staff roles recognised by the engine's admin surface.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleOrganizer UserRole = "ORGANIZER"
	RoleScanner   UserRole = "SCANNER"
)

// JWTClaims represents the access-token payload issued by the external auth service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	TenantID string   `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}
