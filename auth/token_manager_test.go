package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTokenServer returns a test IAM endpoint that counts exchange calls and
// records the grant type of the last request.
func newTokenServer(t *testing.T, calls *int32, lastGrant *atomic.Value, delay time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if lastGrant != nil {
			lastGrant.Store(r.PostForm.Get("grant_type"))
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		n := atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(IAMTokenServerResponse{
			AccessToken:  fmt.Sprintf("access-token-%d", n),
			RefreshToken: fmt.Sprintf("refresh-token-%d", n),
			TokenType:    "Bearer",
			ExpiresIn:    3600,
		})
	}))
}

func TestGetTokenExchangesAndCaches(t *testing.T) {
	var calls int32
	server := newTokenServer(t, &calls, nil, 0)
	defer server.Close()

	tm, err := NewIAMTokenManager("my-apikey", "", server.URL, nil)
	require.NoError(t, err)

	token, err := tm.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "access-token-1", token)

	// Second call is served from the cache.
	token, err = tm.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "access-token-1", token)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetTokenRefreshesInsideSafetyMargin(t *testing.T) {
	var calls int32
	server := newTokenServer(t, &calls, nil, 0)
	defer server.Close()

	tm, err := NewIAMTokenManager("my-apikey", "", server.URL, nil)
	require.NoError(t, err)

	// Cached token expires in 2 minutes with a 5 minute margin: stale.
	now := time.Now()
	tm.mu.Lock()
	tm.accessToken = "stale-token"
	tm.expireTime = now.Add(2 * time.Minute)
	tm.refreshTime = tm.expireTime.Add(-5 * time.Minute)
	tm.mu.Unlock()

	token, err := tm.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "access-token-1", token)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetTokenServesCachedOutsideSafetyMargin(t *testing.T) {
	var calls int32
	server := newTokenServer(t, &calls, nil, 0)
	defer server.Close()

	tm, err := NewIAMTokenManager("my-apikey", "", server.URL, nil)
	require.NoError(t, err)

	// Cached token expires in 20 minutes with a 5 minute margin: fresh.
	now := time.Now()
	tm.mu.Lock()
	tm.accessToken = "cached-token"
	tm.expireTime = now.Add(20 * time.Minute)
	tm.refreshTime = tm.expireTime.Add(-5 * time.Minute)
	tm.mu.Unlock()

	token, err := tm.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "cached-token", token)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "no exchange call expected")
}

func TestGetTokenSingleFlight(t *testing.T) {
	var calls int32
	server := newTokenServer(t, &calls, nil, 50*time.Millisecond)
	defer server.Close()

	tm, err := NewIAMTokenManager("my-apikey", "", server.URL, nil)
	require.NoError(t, err)

	const concurrency = 10
	tokens := make([]string, concurrency)
	errs := make([]error, concurrency)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = tm.GetToken()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "exactly one exchange for concurrent callers")
	for i := 0; i < concurrency; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, tokens[0], tokens[i])
	}
}

func TestGetTokenUsesRefreshGrantWhenAvailable(t *testing.T) {
	var calls int32
	var lastGrant atomic.Value
	server := newTokenServer(t, &calls, &lastGrant, 0)
	defer server.Close()

	tm, err := NewIAMTokenManager("my-apikey", "", server.URL, nil)
	require.NoError(t, err)

	_, err = tm.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "urn:ibm:params:oauth:grant-type:apikey", lastGrant.Load())

	// Force staleness; the cached refresh token selects the refresh grant.
	tm.mu.Lock()
	tm.refreshTime = time.Now().Add(-time.Minute)
	tm.mu.Unlock()

	token, err := tm.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "access-token-2", token)
	assert.Equal(t, "refresh_token", lastGrant.Load())
}

func TestGetTokenFallsBackToApiKeyWhenRefreshRejected(t *testing.T) {
	// The server mints tokens for the apikey grant but rejects every
	// refresh grant, as it would for an expired or revoked refresh token.
	var mu sync.Mutex
	var grants []string
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		grant := r.PostForm.Get("grant_type")
		mu.Lock()
		grants = append(grants, grant)
		mu.Unlock()

		if grant == "refresh_token" {
			http.Error(w, `{"errorMessage":"refresh token expired"}`, http.StatusBadRequest)
			return
		}
		n := atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(IAMTokenServerResponse{
			AccessToken:  fmt.Sprintf("access-token-%d", n),
			RefreshToken: fmt.Sprintf("refresh-token-%d", n),
			ExpiresIn:    3600,
		})
	}))
	defer server.Close()

	tm, err := NewIAMTokenManager("my-apikey", "", server.URL, nil)
	require.NoError(t, err)

	token, err := tm.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "access-token-1", token)

	// Force staleness so the cached refresh token selects the refresh grant.
	tm.mu.Lock()
	tm.refreshTime = time.Now().Add(-time.Minute)
	tm.mu.Unlock()

	token, err = tm.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "access-token-2", token)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"urn:ibm:params:oauth:grant-type:apikey",
		"refresh_token",
		"urn:ibm:params:oauth:grant-type:apikey",
	}, grants)
}

func TestMutatorsInvalidateCache(t *testing.T) {
	var calls int32
	server := newTokenServer(t, &calls, nil, 0)
	defer server.Close()

	tm, err := NewIAMTokenManager("my-apikey", "", server.URL, nil)
	require.NoError(t, err)

	_, err = tm.GetToken()
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// A new api key must force a re-exchange.
	require.NoError(t, tm.SetApiKey("another-apikey"))
	_, err = tm.GetToken()
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	// So must a new token endpoint.
	require.NoError(t, tm.SetIAMURL(server.URL))
	_, err = tm.GetToken()
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSetApiKeyRejectsBadValue(t *testing.T) {
	tm, err := NewIAMTokenManager("my-apikey", "", "https://iam.test", nil)
	require.NoError(t, err)
	assert.Error(t, tm.SetApiKey(`"bad"`))
}

func TestCallerManagedTokenServedUnconditionally(t *testing.T) {
	tm, err := NewIAMTokenManager("", "caller-token", "", nil)
	require.NoError(t, err)

	token, err := tm.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "caller-token", token)
}

func TestCallerManagedTokenExpiryDetected(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tm, err := NewIAMTokenManager("", signed, "", nil)
	require.NoError(t, err)

	require.NotNil(t, tm.userTokenExpires)
	assert.True(t, tm.userTokenExpires.Before(time.Now()))

	// Expired or not, the caller-managed token is returned as-is.
	token, err := tm.GetToken()
	require.NoError(t, err)
	assert.Equal(t, signed, token)
}

func TestOpaqueCallerTokenHasNoExpiry(t *testing.T) {
	tm, err := NewIAMTokenManager("", "not-a-jwt", "", nil)
	require.NoError(t, err)
	assert.Nil(t, tm.userTokenExpires)
}

func TestTokenExchangeErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorMessage":"API key is invalid"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	tm, err := NewIAMTokenManager("bad-apikey", "", server.URL, nil)
	require.NoError(t, err)

	_, err = tm.GetToken()
	require.Error(t, err)

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Error(), "status 400")

	// Nothing was cached.
	tm.mu.Lock()
	defer tm.mu.Unlock()
	assert.Empty(t, tm.accessToken)
}

func TestTokenExchangeMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not json"))
	}))
	defer server.Close()

	tm, err := NewIAMTokenManager("my-apikey", "", server.URL, nil)
	require.NoError(t, err)

	_, err = tm.GetToken()
	require.Error(t, err)

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Error(), "could not parse token server response")
}

func TestTokenExchangeMissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(IAMTokenServerResponse{TokenType: "Bearer"})
	}))
	defer server.Close()

	tm, err := NewIAMTokenManager("my-apikey", "", server.URL, nil)
	require.NoError(t, err)

	_, err = tm.GetToken()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no access token")
}

func TestTokenExchangeTransportError(t *testing.T) {
	tm, err := NewIAMTokenManager("my-apikey", "", "http://127.0.0.1:1", nil)
	require.NoError(t, err)

	_, err = tm.GetToken()
	require.Error(t, err)

	var authErr *AuthenticationError
	assert.ErrorAs(t, err, &authErr)
}

func TestSaveTokenInfoExpiryNormalization(t *testing.T) {
	tm, err := NewIAMTokenManager("my-apikey", "", "https://iam.test", nil)
	require.NoError(t, err)

	// Absolute expiration plus relative lifetime: a 20% margin applies.
	now := time.Now()
	tm.mu.Lock()
	tm.saveTokenInfoLocked(&IAMTokenServerResponse{
		AccessToken: "token",
		ExpiresIn:   3600,
		Expiration:  now.Add(time.Hour).Unix(),
	})
	expire, refresh := tm.expireTime, tm.refreshTime
	tm.mu.Unlock()

	assert.WithinDuration(t, now.Add(time.Hour), expire, 2*time.Second)
	assert.WithinDuration(t, now.Add(48*time.Minute), refresh, 2*time.Second)

	// Absolute expiration only: the fixed fallback margin applies.
	tm.mu.Lock()
	tm.saveTokenInfoLocked(&IAMTokenServerResponse{
		AccessToken: "token",
		Expiration:  now.Add(time.Hour).Unix(),
	})
	refresh = tm.refreshTime
	tm.mu.Unlock()

	assert.WithinDuration(t, now.Add(55*time.Minute), refresh, 2*time.Second)
}
