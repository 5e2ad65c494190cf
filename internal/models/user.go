package models

import "time"

// Role tiers stored in users.role.
const (
	RoleNormal      = 0
	RoleMember      = 1
	RoleSuperMember = 2
	RoleAdmin       = 3
)

var roleNames = map[int]string{
	RoleNormal:      "NORMAL",
	RoleMember:      "MEMBER",
	RoleSuperMember: "SUPER_MEMBER",
	RoleAdmin:       "ADMIN",
}

// RoleName maps a stored role tier to its token claim name (without
// the ROLE_ prefix). Unknown tiers map to NORMAL.
func RoleName(role int) string {
	if n, ok := roleNames[role]; ok {
		return n
	}
	return "NORMAL"
}

type User struct {
	ID           uint64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID         string  `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	Email        string  `gorm:"type:varchar(100);uniqueIndex;not null" json:"email"`
	Phone        *string `gorm:"type:varchar(20);uniqueIndex" json:"phone,omitempty"`
	Name         string  `gorm:"type:varchar(100);not null" json:"name"`
	PasswordHash string  `gorm:"type:varchar(255);not null" json:"-"`
	Role         int     `gorm:"type:tinyint;default:0;index" json:"role"`
	TokenVersion int     `gorm:"default:0;not null" json:"-"`

	// Unix seconds. MembershipExpiry 0 means not a paid member.
	CreatedAt        int64 `gorm:"not null" json:"created_at"`
	UpdatedAt        int64 `gorm:"not null" json:"updated_at"`
	LastLogin        int64 `gorm:"default:0" json:"last_login"`
	MembershipExpiry int64 `gorm:"default:0" json:"membership_expiry"`
}

func (User) TableName() string { return "users" }

func (u *User) IsAdmin() bool  { return u.Role == RoleAdmin }
func (u *User) IsMember() bool { return u.Role >= RoleMember }

// MembershipLapsed reports whether a paid tier has run out its window.
func (u *User) MembershipLapsed(now time.Time) bool {
	return now.Unix() > u.MembershipExpiry
}

// SafeUser is the sanitized shape returned to clients.
type SafeUser struct {
	ID               uint64 `json:"id"`
	UUID             string `json:"uuid"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	Role             int    `json:"role"`
	RoleName         string `json:"roleName"`
	TokenVersion     int    `json:"tokenVersion"`
	MembershipExpiry int64  `json:"membershipExpiry"`
	LastLogin        int64  `json:"lastLogin"`
}

func Sanitize(u *User) SafeUser {
	return SafeUser{
		ID:               u.ID,
		UUID:             u.UUID,
		Email:            u.Email,
		Name:             u.Name,
		Role:             u.Role,
		RoleName:         RoleName(u.Role),
		TokenVersion:     u.TokenVersion,
		MembershipExpiry: u.MembershipExpiry,
		LastLogin:        u.LastLogin,
	}
}
