package order

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canteen-system/internal/auth"
	"canteen-system/internal/logger"
	"canteen-system/internal/models"
	"canteen-system/internal/web"
)

func newRouter(f *fixture) (chi.Router, *auth.Authenticator) {
	authn := auth.New("test-secret", time.Hour)
	r := chi.NewRouter()
	r.Use(web.WithLogging(logger.Discard()))
	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware(logger.Discard()))
		NewHandler(f.service, logger.Discard(), 5*time.Second).Routes(r)
	})
	return r, authn
}

func do(t *testing.T, r http.Handler, authn *auth.Authenticator, p models.Principal, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	token, err := authn.IssueToken(p)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPlaceAndCompleteOverHTTP(t *testing.T) {
	f := newFixture(t)
	r, authn := newRouter(f)
	thali := f.item("Veg Thali", 120, 50)

	rec := do(t, r, authn, f.user, http.MethodPost, "/orders", map[string]interface{}{
		"outlet_id":   f.outlet,
		"lines":       []map[string]interface{}{{"menu_item_id": thali.ID, "quantity": 2}},
		"fulfillment": "takeaway",
		"settlement":  "individual",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, "240", order.Total.String())

	rec = do(t, r, authn, f.operator, http.MethodPost, "/orders/"+order.Reference+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, r, authn, f.operator, http.MethodPost, "/orders/"+order.Reference+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, r, authn, f.user, http.MethodGet, "/orders/"+order.Reference+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []models.OrderStatusHistory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history, 2)
}

func TestHTTPErrorMapping(t *testing.T) {
	f := newFixture(t)
	r, authn := newRouter(f)
	item := f.item("Samosa", 15, 1)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{
			name:   "invalid fulfillment",
			method: http.MethodPost, path: "/orders",
			body: map[string]interface{}{"outlet_id": f.outlet, "lines": []map[string]interface{}{{"menu_item_id": item.ID, "quantity": 1}}, "fulfillment": "delivery", "settlement": "individual"},
			want: http.StatusBadRequest,
		},
		{
			name:   "insufficient stock",
			method: http.MethodPost, path: "/orders",
			body: map[string]interface{}{"outlet_id": f.outlet, "lines": []map[string]interface{}{{"menu_item_id": item.ID, "quantity": 5}}, "fulfillment": "dine_in", "settlement": "individual"},
			want: http.StatusConflict,
		},
		{name: "unknown order", method: http.MethodGet, path: "/orders/ORD_20250101_000000_abcdef", want: http.StatusNotFound},
		{name: "bad outlet id", method: http.MethodGet, path: "/outlets/not-a-uuid/orders", want: http.StatusBadRequest},
		{name: "not staff", method: http.MethodGet, path: "/outlets/" + f.outlet.String() + "/orders", want: http.StatusForbidden},
		{name: "bad limit", method: http.MethodGet, path: "/orders?limit=zero", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, authn, f.user, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
			assert.NotEmpty(t, body["request_id"])
		})
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	f := newFixture(t)
	r, _ := newRouter(f)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
