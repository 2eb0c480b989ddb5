package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apperrors "cicadagallery/internal/errors"
	"cicadagallery/internal/i18n"
	"cicadagallery/internal/infrastructure"
)

// RequirePremium rejects requests with 403 unless gate reports premium.
// The problem detail is localized from Accept-Language.
func RequirePremium(gate PremiumChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate.IsPremium() {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			logger.DebugContext(ctx, "premium feature requested without license",
				slog.String("path", r.URL.Path),
			)

			lang := i18n.Normalize(r.Header.Get("Accept-Language"))
			problem := apperrors.MapLicenseError(apperrors.ErrLicenseNotActivated,
				i18n.T(lang, "err_not_activated"), r.URL.Path, infrastructure.GetTraceID(ctx))
			render.Render(w, r, problem)
		})
	}
}
