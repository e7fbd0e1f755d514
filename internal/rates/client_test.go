package rates

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientReconcile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rates", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"base": "TWD",
			"rates": map[string]float64{
				"TWD": 1.0,
				"JPY": 0.21,
				"USD": 32.0,
			},
		})
	}))
	defer srv.Close()

	c := NewRatesClient(srv.URL, 0)

	rate, err := c.Reconcile(context.Background(), "JPY", "TWD")
	require.NoError(t, err)
	assert.InDelta(t, 0.21, rate, 1e-9)

	rate, err = c.Reconcile(context.Background(), "USD", "JPY")
	require.NoError(t, err)
	assert.InDelta(t, 32.0/0.21, rate, 1e-9)

	_, err = c.Reconcile(context.Background(), "EGP", "TWD")
	require.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestClientReconcileDaemonDown(t *testing.T) {
	c := NewRatesClient("http://127.0.0.1:1", 0)
	_, err := c.Reconcile(context.Background(), "JPY", "TWD")
	assert.Error(t, err)
}

func TestClientReconcileBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewRatesClient(srv.URL, 0)
	_, err := c.Reconcile(context.Background(), "JPY", "TWD")
	assert.Error(t, err)
}
