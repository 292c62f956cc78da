// Package dashboard serves the post-signup customer directory.
package dashboard

import (
	"time"

	"onboarding_backend/internal/common"
	"onboarding_backend/internal/identity"
)

// CustomerStatus is shown as a badge in the customer table.
type CustomerStatus string

const (
	StatusActive   CustomerStatus = "Active"
	StatusInactive CustomerStatus = "Inactive"
)

// Customer is one row of the directory.
type Customer struct {
	common.BaseModel
	Name         string         `gorm:"not null" json:"name"`
	Handle       string         `gorm:"index" json:"handle"`
	Company      string         `json:"company"`
	Phone        string         `json:"phone"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	Country      string         `json:"country"`
	Status       CustomerStatus `gorm:"type:varchar(16);not null;default:Active" json:"status"`
	LastActiveAt time.Time      `json:"last_active_at"`
}

// SortOrder orders the customer table.
type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
	SortName   SortOrder = "name"
)

// CustomerQuery selects a page of customers. An empty Text lists everyone.
type CustomerQuery struct {
	Text string    `form:"q"`
	Sort SortOrder `form:"sort" binding:"omitempty,oneof=newest oldest name"`
	common.PaginationQuery
}

// Stats is the header card snapshot.
type Stats struct {
	TotalCustomers int64     `json:"total_customers"`
	Members        int64     `json:"members"`
	ActiveNow      int64     `json:"active_now"`
	ComputedAt     time.Time `json:"computed_at"`
}

// Viewer is the signed-in user looking at the dashboard.
type Viewer struct {
	User    *identity.User
	Profile *identity.Profile
}

// Overview is everything the dashboard renders.
type Overview struct {
	Greeting   string             `json:"greeting"`
	Profile    *identity.Profile  `json:"profile,omitempty"`
	Stats      Stats              `json:"stats"`
	Customers  []Customer         `json:"customers"`
	Pagination *common.Pagination `json:"-"`
}
