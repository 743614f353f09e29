package models

import "github.com/golang-jwt/jwt/v5"

// UserRole is the role carried in tokens issued by the school administration app.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleTeacher    UserRole = "TEACHER"
	RoleStudent    UserRole = "STUDENT"
)

// ActorClaims is the access token payload. Tokens are issued elsewhere and only verified here.
type ActorClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
