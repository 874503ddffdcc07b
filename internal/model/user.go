package model

import "time"

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      Role      `json:"role"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type UserSummary struct {
	ID        int64   `json:"id"`
	FullName  string  `json:"full_name"`
	Email     string  `json:"email"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

type UserCreate struct {
	Username  string  `json:"username" validate:"required,max=50"`
	Email     string  `json:"email" validate:"required,email,max=100"`
	Password  string  `json:"password" validate:"required,min=8"`
	FirstName string  `json:"first_name" validate:"max=50"`
	LastName  string  `json:"last_name" validate:"max=50"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

type UserUpdate struct {
	Username  string  `json:"username" validate:"required,max=50"`
	Email     string  `json:"email" validate:"required,email,max=100"`
	FirstName string  `json:"first_name" validate:"max=50"`
	LastName  string  `json:"last_name" validate:"max=50"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

type PasswordChange struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

type PasswordReset struct {
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

type RoleChange struct {
	UserID  int64  `json:"user_id" validate:"required"`
	NewRole string `json:"new_role" validate:"required"`
}
