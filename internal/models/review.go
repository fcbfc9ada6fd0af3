package models

import (
	"time"
)

// Review is a product review collected over WhatsApp
type Review struct {
	ID            int64      `json:"id" db:"id"`
	ContactNumber string     `json:"contact_number" db:"contact_number"`
	UserName      string     `json:"user_name" db:"user_name"`
	ProductName   string     `json:"product_name" db:"product_name"`
	ProductReview string     `json:"product_review" db:"product_review"`
	CreatedAt     *time.Time `json:"created_at" db:"created_at"`
}

// NewReview holds the fields supplied when a review is recorded
type NewReview struct {
	ContactNumber string
	UserName      string
	ProductName   string
	ProductReview string
}
