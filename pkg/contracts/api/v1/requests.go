// Package api contains request definitions for the local license API.
package api

// ActivateLicenseRequest is submitted by the license screen.
type ActivateLicenseRequest struct {
	OrderID string `json:"order_id" validate:"required,max=128"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Lang    string `json:"lang,omitempty" validate:"omitempty,max=35"`
}
