package middleware

// PremiumChecker reports whether premium features are unlocked. The
// license gate satisfies it.
type PremiumChecker interface {
	IsPremium() bool
}
