package auth

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/ibmcloud-go/sdk-core/common"
	"github.com/ibmcloud-go/sdk-core/logger"
)

const (
	// DefaultIAMURL is the public IAM token-exchange endpoint used when no
	// override is configured.
	DefaultIAMURL = "https://iam.cloud.ibm.com/identity/token"

	grantTypeAPIKey       = "urn:ibm:params:oauth:grant-type:apikey"
	grantTypeRefreshToken = "refresh_token"
	responseTypeCloudIAM  = "cloud_iam"

	// The token server authenticates the SDK itself with this fixed
	// client id / secret pair.
	iamClientID     = "bx"
	iamClientSecret = "bx"

	// fallbackRefreshMargin is used when the token server reports an absolute
	// expiration but no relative lifetime, so a fractional margin cannot be
	// computed.
	fallbackRefreshMargin = 5 * time.Minute
)

// IAMTokenServerResponse is the body returned by the IAM token-exchange
// endpoint.
type IAMTokenServerResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Expiration   int64  `json:"expiration"`
}

// IAMTokenManager produces a currently-valid bearer access token on demand,
// caching tokens between calls and refreshing them before they expire. A
// cached token is treated as stale once 80% of its lifetime has elapsed, so a
// token never expires mid-flight to the target service.
//
// GetToken is safe for concurrent use: the refresh path is serialized per
// manager, so at most one token exchange is in flight at a time and
// concurrent callers all receive the same freshly cached token. The mutators
// are not required to be concurrency-safe with respect to each other.
type IAMTokenManager struct {
	mu    sync.Mutex
	group singleflight.Group

	client *http.Client

	apiKey string
	url    string

	// userAccessToken is a caller-managed token supplied instead of an api
	// key; it is served as-is with no expiry tracking.
	userAccessToken  string
	userTokenExpires *time.Time

	accessToken  string
	refreshToken string
	expireTime   time.Time
	refreshTime  time.Time
}

// NewIAMTokenManager constructs a token manager. One of apiKey or accessToken
// must be supplied. An empty url selects DefaultIAMURL; a nil client gets a
// default http.Client with a 30 second timeout for the exchange call.
func NewIAMTokenManager(apiKey, accessToken, iamURL string, client *http.Client) (*IAMTokenManager, error) {
	if err := common.ValidateCredential("apikey", apiKey); err != nil {
		return nil, err
	}
	if iamURL == "" {
		iamURL = DefaultIAMURL
	} else if err := common.ValidateCredential("iam_url", iamURL); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	tm := &IAMTokenManager{
		apiKey: apiKey,
		url:    iamURL,
		client: client,
	}
	if accessToken != "" {
		tm.SetAccessToken(accessToken)
	}
	return tm, nil
}

// Validate checks that the manager holds usable credential material.
func (tm *IAMTokenManager) Validate() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.apiKey == "" && tm.userAccessToken == "" {
		return common.NewConfigurationError("apikey",
			"an IAM api key or access token is required")
	}
	return common.ValidateCredential("apikey", tm.apiKey)
}

// GetToken returns a currently-valid access token, performing a token
// exchange when no fresh token is cached.
func (tm *IAMTokenManager) GetToken() (string, error) {
	tm.mu.Lock()

	// A caller-managed token is served unconditionally; the caller owns its
	// lifecycle.
	if tm.userAccessToken != "" && tm.apiKey == "" {
		token := tm.userAccessToken
		expires := tm.userTokenExpires
		tm.mu.Unlock()
		if expires != nil && time.Now().After(*expires) {
			logger.GetLogger().Warn("the caller-supplied IAM access token expired at %s", expires.Format(time.RFC3339))
		}
		return token, nil
	}

	if token, ok := tm.cachedTokenLocked(); ok {
		tm.mu.Unlock()
		return token, nil
	}
	tm.mu.Unlock()

	// Concurrent callers that find the cache stale share a single exchange.
	result, err, _ := tm.group.Do("token", func() (interface{}, error) {
		tm.mu.Lock()
		if token, ok := tm.cachedTokenLocked(); ok {
			tm.mu.Unlock()
			return token, nil
		}
		form := tm.grantFormLocked()
		endpoint := tm.url
		tm.mu.Unlock()

		tokenResponse, err := tm.requestToken(endpoint, form)
		if err != nil && form.Get("grant_type") == grantTypeRefreshToken {
			// A refresh token the server no longer accepts must not wedge
			// the manager: discard it and retry with the api key.
			logger.GetLogger().Warn("refresh grant was rejected, retrying with the api key: %s", err.Error())
			tm.mu.Lock()
			tm.refreshToken = ""
			if tm.apiKey == "" {
				tm.mu.Unlock()
				return nil, err
			}
			form = tm.grantFormLocked()
			endpoint = tm.url
			tm.mu.Unlock()
			tokenResponse, err = tm.requestToken(endpoint, form)
		}
		if err != nil {
			return nil, err
		}

		tm.mu.Lock()
		tm.saveTokenInfoLocked(tokenResponse)
		token := tm.accessToken
		tm.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// cachedTokenLocked returns the cached token when it is still fresh.
// Callers must hold tm.mu.
func (tm *IAMTokenManager) cachedTokenLocked() (string, bool) {
	if tm.accessToken != "" && time.Now().Before(tm.refreshTime) {
		return tm.accessToken, true
	}
	return "", false
}

// grantFormLocked builds the token-exchange form for the current state: a
// refresh grant when a refresh token is cached, otherwise the api-key grant.
// Callers must hold tm.mu.
func (tm *IAMTokenManager) grantFormLocked() url.Values {
	form := url.Values{}
	if tm.refreshToken != "" {
		form.Set("grant_type", grantTypeRefreshToken)
		form.Set("refresh_token", tm.refreshToken)
	} else {
		form.Set("grant_type", grantTypeAPIKey)
		form.Set("apikey", tm.apiKey)
		form.Set("response_type", responseTypeCloudIAM)
	}
	return form
}

// requestToken performs the exchange call against the IAM endpoint. Any
// failure, including a malformed response body, is a hard authentication
// error; nothing is cached on failure.
func (tm *IAMTokenManager) requestToken(endpoint string, form url.Values) (*IAMTokenServerResponse, error) {
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, NewAuthenticationError("could not build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(iamClientID, iamClientSecret)

	logger.GetLogger().Debug("requesting IAM access token from %s", endpoint)

	resp, err := tm.client.Do(req)
	if err != nil {
		return nil, NewAuthenticationError("token exchange request failed", err)
	}
	defer resp.Body.Close() // nolint: errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewAuthenticationError("could not read token server response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewAuthenticationError(
			fmt.Sprintf("token exchange returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	tokenResponse := &IAMTokenServerResponse{}
	if err := json.Unmarshal(body, tokenResponse); err != nil {
		return nil, NewAuthenticationError("could not parse token server response", err)
	}
	if tokenResponse.AccessToken == "" {
		return nil, NewAuthenticationError("token server response contained no access token", nil)
	}
	return tokenResponse, nil
}

// saveTokenInfoLocked caches the exchange result and computes the absolute
// expiry plus the staleness boundary. Callers must hold tm.mu.
func (tm *IAMTokenManager) saveTokenInfoLocked(tokenResponse *IAMTokenServerResponse) {
	now := time.Now()

	tm.accessToken = tokenResponse.AccessToken
	if tokenResponse.RefreshToken != "" {
		tm.refreshToken = tokenResponse.RefreshToken
	}

	switch {
	case tokenResponse.Expiration > 0:
		tm.expireTime = time.Unix(tokenResponse.Expiration, 0)
	case tokenResponse.ExpiresIn > 0:
		tm.expireTime = now.Add(time.Duration(tokenResponse.ExpiresIn) * time.Second)
	default:
		tm.expireTime = now
	}

	if tokenResponse.ExpiresIn > 0 {
		// Refresh once 80% of the lifetime has elapsed.
		margin := time.Duration(tokenResponse.ExpiresIn) * time.Second / 5
		tm.refreshTime = tm.expireTime.Add(-margin)
	} else {
		tm.refreshTime = tm.expireTime.Add(-fallbackRefreshMargin)
	}

	logger.GetLogger().Debug("cached IAM access token, expires %s", tm.expireTime.Format(time.RFC3339))
}

// invalidateLocked discards all cached token state. Callers must hold tm.mu.
func (tm *IAMTokenManager) invalidateLocked() {
	tm.accessToken = ""
	tm.refreshToken = ""
	tm.expireTime = time.Time{}
	tm.refreshTime = time.Time{}
}

// SetApiKey replaces the api key. Any cached token was obtained with the old
// key, so the cache is discarded and the next GetToken re-exchanges.
func (tm *IAMTokenManager) SetApiKey(apiKey string) error {
	if err := common.ValidateCredential("apikey", apiKey); err != nil {
		return err
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.apiKey = apiKey
	tm.invalidateLocked()
	return nil
}

// SetIAMURL replaces the token-exchange endpoint and discards cached state
// tied to the previous endpoint.
func (tm *IAMTokenManager) SetIAMURL(iamURL string) error {
	if err := common.ValidateCredential("iam_url", iamURL); err != nil {
		return err
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.url = iamURL
	tm.invalidateLocked()
	return nil
}

// SetAccessToken installs a caller-managed access token, served as-is by
// GetToken. When the token is a JWT its exp claim is recorded so an expired
// token can at least be flagged in the logs.
func (tm *IAMTokenManager) SetAccessToken(accessToken string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.userAccessToken = accessToken
	tm.userTokenExpires = tokenExpiry(accessToken)
}

// SetRefreshToken replaces the refresh token used by the next exchange. The
// cached access token remains valid; it did not depend on the refresh token.
func (tm *IAMTokenManager) SetRefreshToken(refreshToken string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.refreshToken = refreshToken
}

// tokenExpiry extracts the exp claim from a JWT without verifying it.
// Returns nil for opaque tokens or tokens without an expiry.
func tokenExpiry(token string) *time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	return &exp.Time
}
