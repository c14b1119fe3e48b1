package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role identifica quien responde el cuestionario sobre el sujeto.
type Role string

const (
	RoleChild   Role = "child"
	RoleParent  Role = "parent"
	RoleTeacher Role = "teacher"
)

// Roles en el orden en que se presentan en la revision.
var Roles = []Role{RoleChild, RoleParent, RoleTeacher}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleChild, RoleParent, RoleTeacher:
		return true
	}
	return false
}

// SelfReport indica si el respondente es el propio sujeto.
func (r Role) SelfReport() bool {
	return r == RoleChild
}

// Subject es la persona evaluada. Inmutable despues del registro.
type Subject struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Age         int       `json:"age"`
	Gender      string    `json:"gender,omitempty"`
	SharingCode string    `json:"sharing_code"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
