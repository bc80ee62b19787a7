// Package auth contains the authenticator variants used to decorate outbound
// requests, and the IAM token manager that backs the bearer-token variant.
package auth

import (
	"fmt"
	"net/http"

	"github.com/ibmcloud-go/sdk-core/common"
)

// Authentication type identifiers returned by AuthenticationType().
const (
	AuthTypeNoAuth = "noAuth"
	AuthTypeBasic  = "basic"
	AuthTypeIAM    = "iam"
)

// Authenticator defines the interface for adding authentication information
// to a request. Implementations can be swapped for mocks in tests.
type Authenticator interface {
	// AuthenticationType returns the authentication type for this authenticator
	AuthenticationType() string

	// Validate checks if the authenticator is properly configured
	Validate() error

	// Authenticate adds authentication information to the request
	Authenticate(request *http.Request) error
}

// AuthenticationError reports a failure to obtain or apply authentication
// material, most commonly a failed IAM token exchange. The underlying cause
// is available through errors.Unwrap.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %s", e.Reason, e.Err.Error())
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// NewAuthenticationError builds an AuthenticationError with an optional cause.
func NewAuthenticationError(reason string, err error) *AuthenticationError {
	return &AuthenticationError{Reason: reason, Err: err}
}

// NoAuthAuthenticator performs no authentication. It exists so generated
// clients can be pointed at unsecured endpoints without special-casing.
type NoAuthAuthenticator struct{}

// NewNoAuthAuthenticator constructs a NoAuthAuthenticator.
func NewNoAuthAuthenticator() *NoAuthAuthenticator {
	return &NoAuthAuthenticator{}
}

func (a *NoAuthAuthenticator) AuthenticationType() string {
	return AuthTypeNoAuth
}

func (a *NoAuthAuthenticator) Validate() error {
	return nil
}

func (a *NoAuthAuthenticator) Authenticate(request *http.Request) error {
	return nil
}

// BasicAuthenticator attaches HTTP basic-auth credentials to each request.
type BasicAuthenticator struct {
	Username string
	Password string
}

// NewBasicAuthenticator constructs a validated BasicAuthenticator.
func NewBasicAuthenticator(username, password string) (*BasicAuthenticator, error) {
	a := &BasicAuthenticator{Username: username, Password: password}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *BasicAuthenticator) AuthenticationType() string {
	return AuthTypeBasic
}

// Validate checks that both username and password are present and free of
// surrounding brackets or quotes.
func (a *BasicAuthenticator) Validate() error {
	if a.Username == "" || a.Password == "" {
		return common.NewConfigurationError("credentials",
			"both username and password are required for basic authentication")
	}
	if err := common.ValidateCredential("username", a.Username); err != nil {
		return err
	}
	return common.ValidateCredential("password", a.Password)
}

// Authenticate adds the basic-auth header to the request using the
// transport's native basic-auth support.
func (a *BasicAuthenticator) Authenticate(request *http.Request) error {
	request.SetBasicAuth(a.Username, a.Password)
	return nil
}

// IAMAuthenticator exchanges an IAM api key for a bearer access token and
// attaches it as an Authorization header. Each authenticator owns exactly one
// token manager; the manager is not shared between authenticators.
type IAMAuthenticator struct {
	tokenManager *IAMTokenManager
}

// NewIAMAuthenticator constructs an IAMAuthenticator backed by a new token
// manager. Either apiKey or accessToken must be supplied; url defaults to the
// public IAM token endpoint. A nil client gets a default http.Client.
func NewIAMAuthenticator(apiKey, accessToken, url string, client *http.Client) (*IAMAuthenticator, error) {
	tm, err := NewIAMTokenManager(apiKey, accessToken, url, client)
	if err != nil {
		return nil, err
	}
	return &IAMAuthenticator{tokenManager: tm}, nil
}

func (a *IAMAuthenticator) AuthenticationType() string {
	return AuthTypeIAM
}

// Validate checks the api key held by the owned token manager.
func (a *IAMAuthenticator) Validate() error {
	return a.tokenManager.Validate()
}

// Authenticate fetches a current bearer token from the token manager, which
// may perform a blocking token exchange, and sets the Authorization header.
func (a *IAMAuthenticator) Authenticate(request *http.Request) error {
	token, err := a.tokenManager.GetToken()
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// TokenManager exposes the owned token manager so callers can adjust its
// configuration after construction.
func (a *IAMAuthenticator) TokenManager() *IAMTokenManager {
	return a.tokenManager
}
