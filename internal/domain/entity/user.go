package entity

import "time"

// UserRole 用户角色
type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

// User 平台用户（Admin API 认证主体）
type User struct {
	id           string
	email        string
	passwordHash string
	role         UserRole
	tenantID     string // 可为空：平台级管理员不绑定单一租户
	status       string
	lastLogin    *time.Time
}

// NewUser 创建新用户
func NewUser(id, email, passwordHash string, role UserRole) (*User, error) {
	if id == "" {
		return nil, ErrInvalidUserID
	}
	if email == "" {
		return nil, ErrInvalidUserEmail
	}
	return &User{
		id:           id,
		email:        email,
		passwordHash: passwordHash,
		role:         role,
		status:       "active",
	}, nil
}

// ReconstructUser rebuilds a User from persisted fields.
func ReconstructUser(id, email, passwordHash string, role UserRole, tenantID, status string, lastLogin *time.Time) *User {
	return &User{id: id, email: email, passwordHash: passwordHash, role: role, tenantID: tenantID, status: status, lastLogin: lastLogin}
}

func (u *User) ID() string              { return u.id }
func (u *User) Email() string           { return u.email }
func (u *User) PasswordHash() string    { return u.passwordHash }
func (u *User) Role() UserRole          { return u.role }
func (u *User) TenantID() string        { return u.tenantID }
func (u *User) Status() string          { return u.status }
func (u *User) LastLogin() *time.Time   { return u.lastLogin }
func (u *User) IsAdmin() bool           { return u.role == UserRoleAdmin }

// BindTenant associates the user with the tenant they own.
func (u *User) BindTenant(tenantID string) {
	u.tenantID = tenantID
}

// RecordLogin stamps the current time as the user's last login.
func (u *User) RecordLogin(at time.Time) {
	u.lastLogin = &at
}
