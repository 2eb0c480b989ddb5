package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticGate bool

func (g staticGate) IsPremium() bool { return bool(g) }

func TestRequirePremium(t *testing.T) {
	tests := []struct {
		name       string
		premium    bool
		lang       string
		wantStatus int
		wantDetail string
	}{
		{"premium passes", true, "", http.StatusOK, ""},
		{"free rejected", false, "", http.StatusForbidden, "This feature is available in Premium version"},
		{"free rejected in japanese", false, "ja-JP,ja;q=0.9", http.StatusForbidden, "この機能はプレミアム版で利用可能です"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequirePremium(staticGate(tt.premium), discardLogger())(okHandler)

			req := httptest.NewRequest(http.MethodGet, "/api/premium/features", nil)
			if tt.lang != "" {
				req.Header.Set("Accept-Language", tt.lang)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantDetail == "" {
				return
			}

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "not_activated", body["error_type"])
			assert.Equal(t, "/api/premium/features", body["instance"])
			assert.Contains(t, body["detail"], tt.wantDetail)
		})
	}
}
