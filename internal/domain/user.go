package domain

import "time"

// AccountRole separa respondentes de profesionales que revisan resultados.
type AccountRole string

const (
	AccountRespondent AccountRole = "respondent"
	AccountReviewer   AccountRole = "reviewer"
)

func (r AccountRole) Valid() bool {
	return r == AccountRespondent || r == AccountReviewer
}

type User struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	DisplayName  string      `json:"display_name,omitempty"`
	AccountRole  AccountRole `json:"account_role"`
	PasswordHash string      `json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
}
