package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// Verification failures. Every invalid license maps to exactly one of these.
var (
	ErrMalformedFormat   = errors.New("malformed license format")
	ErrWrongProduct      = errors.New("license issued for a different product")
	ErrLicenseExpired    = errors.New("license expired")
	ErrSignatureMismatch = errors.New("license signature mismatch")
)

// Activation failures.
var (
	ErrNetworkError         = errors.New("network error")
	ErrServiceRejected      = errors.New("issuance service rejected the request")
	ErrActivationInProgress = errors.New("activation already in progress")
	ErrActivationCancelled  = errors.New("activation cancelled")
	ErrLicenseNotActivated  = errors.New("license not activated")
	ErrPremiumUnavailable   = errors.New("premium features are not available in this build")
	ErrInvalidRequest       = errors.New("order id and email are required")
)

// Issuance service failures.
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderEmailMismatch = errors.New("email does not match order")
	ErrOrderAlreadyIssued = errors.New("license already issued for order")
	ErrRateLimited        = errors.New("rate limited")
)

// Problem types for license endpoints
const (
	TypeValidation          = "/errors/validation"
	TypeNotFound            = "/errors/not-found"
	TypeInternal            = "/errors/internal"
	TypeTimeout             = "/errors/timeout"
	TypeRateLimit           = "/errors/rate-limit"
	TypeLicenseMalformed    = "/errors/license/malformed"
	TypeLicenseWrongProduct = "/errors/license/wrong-product"
	TypeLicenseExpired      = "/errors/license/expired"
	TypeLicenseSignature    = "/errors/license/signature-mismatch"
	TypeLicenseNetwork      = "/errors/license/network"
	TypeLicenseRejected     = "/errors/license/rejected"
	TypeLicenseInProgress   = "/errors/license/in-progress"
	TypeLicenseCancelled    = "/errors/license/cancelled"
	TypeLicenseRequired     = "/errors/license/premium-required"
	TypeLicenseUnavailable  = "/errors/license/unavailable"
	TypeOrderNotFound       = "/errors/order/not-found"
	TypeOrderIssued         = "/errors/order/already-issued"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON flattens extensions into the top-level object
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{}, len(pd.Extensions)+5)
	for k, v := range pd.Extensions {
		data[k] = v
	}

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

type licenseProblem struct {
	status    int
	typ       string
	title     string
	errorType string
}

// Order matters: the first sentinel matched wins.
var licenseProblems = []struct {
	err     error
	problem licenseProblem
}{
	{ErrMalformedFormat, licenseProblem{http.StatusUnprocessableEntity, TypeLicenseMalformed, "Malformed License", "malformed_format"}},
	{ErrWrongProduct, licenseProblem{http.StatusUnprocessableEntity, TypeLicenseWrongProduct, "Wrong Product", "wrong_product"}},
	{ErrLicenseExpired, licenseProblem{http.StatusUnprocessableEntity, TypeLicenseExpired, "License Expired", "expired"}},
	{ErrSignatureMismatch, licenseProblem{http.StatusUnprocessableEntity, TypeLicenseSignature, "Signature Mismatch", "signature_mismatch"}},
	{ErrNetworkError, licenseProblem{http.StatusBadGateway, TypeLicenseNetwork, "Issuance Service Unreachable", "network_error"}},
	{ErrServiceRejected, licenseProblem{http.StatusUnprocessableEntity, TypeLicenseRejected, "Activation Rejected", "service_rejected"}},
	{ErrActivationInProgress, licenseProblem{http.StatusConflict, TypeLicenseInProgress, "Activation In Progress", "in_progress"}},
	{ErrActivationCancelled, licenseProblem{http.StatusConflict, TypeLicenseCancelled, "Activation Cancelled", "cancelled"}},
	{ErrLicenseNotActivated, licenseProblem{http.StatusForbidden, TypeLicenseRequired, "Premium Required", "not_activated"}},
	{ErrPremiumUnavailable, licenseProblem{http.StatusNotImplemented, TypeLicenseUnavailable, "Premium Unavailable", "premium_unavailable"}},
	{ErrInvalidRequest, licenseProblem{http.StatusBadRequest, TypeValidation, "Invalid Request", "invalid_request"}},
	{ErrOrderNotFound, licenseProblem{http.StatusNotFound, TypeOrderNotFound, "Order Not Found", "order_not_found"}},
	{ErrOrderEmailMismatch, licenseProblem{http.StatusNotFound, TypeOrderNotFound, "Order Not Found", "order_not_found"}},
	{ErrOrderAlreadyIssued, licenseProblem{http.StatusConflict, TypeOrderIssued, "Already Issued", "already_issued"}},
	{ErrRateLimited, licenseProblem{http.StatusTooManyRequests, TypeRateLimit, "Rate Limit Exceeded", "rate_limited"}},
}

// ErrorType returns the short machine-readable reason for err, or
// "internal" when err is not a known license error.
func ErrorType(err error) string {
	for _, lp := range licenseProblems {
		if errors.Is(err, lp.err) {
			return lp.problem.errorType
		}
	}
	return "internal"
}

// MapLicenseError converts a license or issuance error to problem details.
// detail is the user-facing message; instance identifies the request.
func MapLicenseError(err error, detail, instance, traceID string) *ProblemDetails {
	for _, lp := range licenseProblems {
		if errors.Is(err, lp.err) {
			problem := NewProblemDetails(lp.problem.status, lp.problem.typ, lp.problem.title, detail, instance).
				WithExtension("error_type", lp.problem.errorType)
			if traceID != "" {
				problem.WithExtension("trace_id", traceID)
			}
			return problem
		}
	}

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		fmt.Sprintf("unexpected error: %s", http.StatusText(http.StatusInternalServerError)),
		instance,
	).WithExtension("error_type", "internal")
	if traceID != "" {
		problem.WithExtension("trace_id", traceID)
	}
	return problem
}
