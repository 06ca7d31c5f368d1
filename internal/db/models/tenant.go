// Package models - tenant.go defines the Tenant model: one dealer organization whose business
// data is partitioned from every other tenant's.
package models

import "time"

// Tenant is a row of the tenant directory. Slug is unique and URL-safe; it routes both
// {slug}.{app-domain} and /{slug}/... requests.
type Tenant struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Slug       string    `json:"slug" db:"slug"`
	Subdomain  *string   `json:"subdomain,omitempty" db:"subdomain"`
	PathPrefix *string   `json:"pathPrefix,omitempty" db:"path_prefix"`
	IsActive   bool      `json:"isActive" db:"is_active"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}
