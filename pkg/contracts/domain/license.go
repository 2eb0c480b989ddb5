// Package domain contains the data contracts shared by the CicadaGallery
// client, the issuance service and the desktop frontend.
package domain

import (
	"time"
)

// IssueLicenseRequest is the body of POST /issue-license.
type IssueLicenseRequest struct {
	OrderID string `json:"order_id" validate:"required,max=128"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Lang    string `json:"lang,omitempty" validate:"omitempty,max=35"`
}

// IssueLicenseResponse is the reply of POST /issue-license. On success
// LicenseString and Message are set; on failure Error carries a
// human-readable reason.
type IssueLicenseResponse struct {
	Success       bool   `json:"success"`
	LicenseString string `json:"license_string,omitempty"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Tier names
const (
	TierFree    = "free"
	TierPremium = "premium"
)

// Capabilities lists what the current tier unlocks. MaxVideos of zero
// means unlimited.
type Capabilities struct {
	MaxVideos          int  `json:"max_videos"`
	MaxStarRating      int  `json:"max_star_rating"`
	SceneThumbnails    bool `json:"scene_thumbnails"`
	CustomShaders      bool `json:"custom_shaders"`
	GPURendering       bool `json:"gpu_rendering"`
	FrameInterpolation bool `json:"frame_interpolation"`
	MultiSelectFilters bool `json:"multi_select_filters"`
}

// LicenseStatus is what the frontend shows on the license screen.
type LicenseStatus struct {
	Premium      bool         `json:"premium"`
	Tier         string       `json:"tier"`
	TierLabel    string       `json:"tier_label"`
	Edition      string       `json:"edition"`
	Activated    bool         `json:"activated"`
	Reason       string       `json:"reason,omitempty"`
	OrderID      string       `json:"order_id,omitempty"`
	Email        string       `json:"email,omitempty"`
	IssuedAt     *time.Time   `json:"issued_at,omitempty"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
	Expires      string       `json:"expires,omitempty"`
	VerifiedAt   *time.Time   `json:"verified_at,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
}

// ActivationResult is returned by the local activate endpoint on success.
type ActivationResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Status  LicenseStatus `json:"status"`
}
