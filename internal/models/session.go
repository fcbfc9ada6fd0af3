package models

import (
	"time"
)

// SessionStep is the question a WhatsApp contact is expected to answer next
type SessionStep string

const (
	StepAskProduct SessionStep = "ask_product"
	StepAskName    SessionStep = "ask_name"
	StepAskReview  SessionStep = "ask_review"
)

// Valid reports whether s is one of the known steps
func (s SessionStep) Valid() bool {
	switch s {
	case StepAskProduct, StepAskName, StepAskReview:
		return true
	}
	return false
}

// SessionState is the in-progress conversation for one contact number
type SessionState struct {
	ContactNumber string      `json:"contact_number" db:"contact_number"`
	Step          SessionStep `json:"step" db:"step"`
	TempProduct   *string     `json:"temp_product,omitempty" db:"temp_product"`
	TempName      *string     `json:"temp_name,omitempty" db:"temp_name"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}
