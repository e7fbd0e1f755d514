package license

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bingyoan/SAUSEGE/internal/localstore"
)

func newVerifier(t *testing.T, cfg Config) *Verifier {
	t.Helper()
	kv, err := localstore.Open(t.TempDir())
	require.NoError(t, err)
	return NewVerifier(cfg, kv, nil)
}

func TestVerifyRequiresEmail(t *testing.T) {
	v := newVerifier(t, Config{})
	_, err := v.Verify(context.Background(), "  ", "")
	require.Error(t, err)
}

func TestCodeRedemptionIsOneShot(t *testing.T) {
	v := newVerifier(t, Config{})
	v.SeedCodes([]string{"night-market-01"})

	// Codes are matched case-insensitively (normalized to uppercase).
	res, err := v.Verify(context.Background(), "A@Example.com", "Night-Market-01")
	require.NoError(t, err)
	assert.True(t, res.Verified)

	// Second redemption of the same code fails.
	res, err = v.Verify(context.Background(), "b@example.com", "NIGHT-MARKET-01")
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Contains(t, res.Message, "Invalid or Used")

	// Redemption also put the buyer on the roster.
	res, err = v.Verify(context.Background(), "a@example.com", "")
	require.NoError(t, err)
	assert.True(t, res.Verified)
}

func TestUnknownCodeRejected(t *testing.T) {
	v := newVerifier(t, Config{})
	res, err := v.Verify(context.Background(), "a@example.com", "NOPE")
	require.NoError(t, err)
	assert.False(t, res.Verified)
}

func TestSalesAPIFallbackSyncsRoster(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "buyer@example.com", r.URL.Query().Get("email"))
		assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
		_, _ = w.Write([]byte(`{"success":true,"sales":[{"id":"s1"}]}`))
	}))
	t.Cleanup(srv.Close)

	v := newVerifier(t, Config{SalesAPIURL: srv.URL, SalesToken: "tok"})

	res, err := v.Verify(context.Background(), "Buyer@Example.com", "")
	require.NoError(t, err)
	assert.True(t, res.Verified)

	// Second check hits the roster, not the API.
	res, err = v.Verify(context.Background(), "buyer@example.com", "")
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, 1, calls)
}

func TestSalesAPIFailureDegradesToNotVerified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	v := newVerifier(t, Config{SalesAPIURL: srv.URL, SalesToken: "tok"})

	res, err := v.Verify(context.Background(), "buyer@example.com", "")
	require.NoError(t, err)
	assert.False(t, res.Verified)
}

func TestNoSalesForEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"sales":[]}`))
	}))
	t.Cleanup(srv.Close)

	v := newVerifier(t, Config{SalesAPIURL: srv.URL, SalesToken: "tok"})

	res, err := v.Verify(context.Background(), "nobody@example.com", "")
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, "No active license found.", res.Message)
}

func TestSeedCodesSkipsDuplicates(t *testing.T) {
	v := newVerifier(t, Config{})
	v.SeedCodes([]string{"abc", "ABC", "", "def"})

	codes := v.loadCodes()
	require.Len(t, codes, 2)
	assert.Equal(t, "ABC", codes[0].Code)
	assert.Equal(t, "DEF", codes[1].Code)
}
