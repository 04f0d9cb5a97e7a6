package users

import "time"

const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

func ValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	}
	return false
}

// User is the profile read model. Identity itself comes from the token
// subject; this row only carries what other components join against.
type User struct {
	ID          string    `gorm:"primaryKey;size:26" json:"id"`
	DisplayName string    `gorm:"size:100;not null" json:"display_name"`
	AvatarURL   string    `gorm:"size:255" json:"avatar_url,omitempty"`
	Role        string    `gorm:"size:16;not null;default:student" json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"-"`
}

func (User) TableName() string { return "users" }
