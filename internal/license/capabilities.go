package license

import (
	"cicadagallery/pkg/contracts/domain"
)

// FreeMaxVideos is the library size limit of the free tier.
const FreeMaxVideos = 100

// Capabilities is the set of features unlocked by the current tier.
type Capabilities = domain.Capabilities

// FreeCapabilities returns what every installation gets.
func FreeCapabilities() Capabilities {
	return Capabilities{
		MaxVideos:     FreeMaxVideos,
		MaxStarRating: 1,
	}
}

// PremiumCapabilities returns what a valid license unlocks.
func PremiumCapabilities() Capabilities {
	return Capabilities{
		MaxVideos:          0,
		MaxStarRating:      5,
		SceneThumbnails:    true,
		CustomShaders:      true,
		GPURendering:       true,
		FrameInterpolation: true,
		MultiSelectFilters: true,
	}
}

// CapabilitiesFor returns the capability set for a premium flag.
func CapabilitiesFor(premium bool) Capabilities {
	if premium {
		return PremiumCapabilities()
	}
	return FreeCapabilities()
}

// CanAddVideos reports whether a library of current videos may grow by n.
func CanAddVideos(c Capabilities, current, n int) bool {
	if c.MaxVideos == 0 {
		return true
	}
	return current+n <= c.MaxVideos
}

// ClampRating limits a star rating to what the tier allows.
func ClampRating(c Capabilities, stars int) int {
	if stars < 0 {
		return 0
	}
	if stars > c.MaxStarRating {
		return c.MaxStarRating
	}
	return stars
}
