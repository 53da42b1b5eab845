package models

import "time"

// Category is shared reference data, not owned by any user.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Expense represents a single expense record. Expenses are immutable after
// creation: they can only be deleted by their owner.
type Expense struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	CategoryID   int64     `json:"category_id"`
	CategoryName string    `json:"category_name"`
	AmountCents  int64     `json:"amount_cents"`
	Description  string    `json:"description"`
	Date         time.Time `json:"date"`
}

// Budget is a monthly spending limit for one (user, category) pair.
// At most one budget exists per user per category.
type Budget struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category_name"`
	LimitCents   int64  `json:"limit_cents"`
}

// User represents a user account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session represents a user session.
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CategoryTotal is an amount summed over one category.
type CategoryTotal struct {
	CategoryID   int64
	CategoryName string
	TotalCents   int64
}

// MonthTotal is an amount summed over one calendar month.
type MonthTotal struct {
	Year       int
	Month      int
	TotalCents int64
}

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month int
}
