package license

import (
	"errors"

	licerr "cicadagallery/internal/errors"
	"cicadagallery/internal/i18n"
)

var messageIDs = map[string]string{
	"malformed_format":    "err_malformed_format",
	"wrong_product":       "err_wrong_product",
	"expired":             "err_expired",
	"signature_mismatch":  "err_signature_mismatch",
	"network_error":       "err_network",
	"in_progress":         "err_in_progress",
	"cancelled":           "err_cancelled",
	"not_activated":       "err_not_activated",
	"premium_unavailable": "err_premium_unavailable",
	"invalid_request":     "invalid_request",
}

// UserMessage turns an activation or verification error into text for the
// license screen in lang ("en", "ja", "zh" or any BCP 47 tag).
func UserMessage(err error, lang string) string {
	if err == nil {
		return i18n.T(lang, "activation_success")
	}

	var rejected *ServiceRejectedError
	if errors.As(err, &rejected) {
		return i18n.Default().T(lang, "err_service_rejected", map[string]interface{}{
			"Message": rejected.Message,
		})
	}

	id, ok := messageIDs[licerr.ErrorType(err)]
	if !ok {
		id = "err_internal"
	}
	return i18n.T(lang, id)
}

// TierLabel returns the localized tier name.
func TierLabel(premium bool, lang string) string {
	if premium {
		return i18n.T(lang, "tier_premium")
	}
	return i18n.T(lang, "tier_free")
}
