// internal/domain/user/entity.go
package user

import (
	"encoding/json"
	"strings"

	"github.com/your-org/eid-storefront/internal/apiclient"
)

// Role of a storefront account
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is the signed-in account as cached on the client
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	District string `json:"district,omitempty"`
	Role     Role   `json:"role"`
}

// IsAdmin is derived from the role. There is no separate admin flag.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// DisplayName returns the name, or the email when no name is set
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return u.Email
}

// Result is the outcome of an auth operation. Auth operations never return
// errors; failures are reported in Error.
type Result struct {
	Success bool
	Error   string
	User    *User
}

// RegisterRequest represents user registration data
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"`
}

// LoginRequest represents user login data
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileUpdate is a partial profile change. Nil fields are left alone.
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Address  *string `json:"address,omitempty"`
	District *string `json:"district,omitempty"`
}

// Apply returns u with the update applied
func (p ProfileUpdate) Apply(u User) User {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.Address != nil {
		u.Address = *p.Address
	}
	if p.District != nil {
		u.District = *p.District
	}
	return u
}

// DecodeUser finds a user object in an auth payload: under "user", under
// "data.user", or the payload itself when it looks like a user.
func DecodeUser(raw json.RawMessage) *User {
	obj := apiclient.ParseObject(raw)
	if obj == nil {
		return nil
	}
	src := obj.Object("user")
	if src == nil {
		src = obj.Object("data").Object("user")
	}
	if src == nil && obj.Has("email") {
		src = obj
	}
	if src == nil {
		return nil
	}

	u := &User{
		ID:       src.String("id", "_id", "userId"),
		Name:     src.String("name", "fullName"),
		Email:    src.String("email"),
		Phone:    src.String("phone"),
		Address:  src.String("address"),
		District: src.String("district", "city"),
		Role:     Role(src.String("role")),
	}
	if u.Name == "" {
		u.Name = strings.TrimSpace(src.String("firstName", "first_name") + " " + src.String("lastName", "last_name"))
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.ID == "" && u.Email == "" {
		return nil
	}
	return u
}

// messageOf extracts the most specific human-readable message from a
// response body
func messageOf(raw json.RawMessage) string {
	obj := apiclient.ParseObject(raw)
	if obj == nil {
		return ""
	}
	if s := obj.String("message", "error", "detail"); s != "" {
		return s
	}
	if s := obj.Object("error").String("message"); s != "" {
		return s
	}
	if s := obj.Object("data").String("message"); s != "" {
		return s
	}
	if errs := apiclient.Items(obj.Raw("errors")); len(errs) > 0 {
		if first := apiclient.ParseObject(errs[0]); first != nil {
			return first.String("message", "msg")
		}
		var s string
		if json.Unmarshal(errs[0], &s) == nil {
			return s
		}
	}
	return ""
}
