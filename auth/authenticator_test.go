package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibmcloud-go/sdk-core/common"
)

func TestNoAuthAuthenticator(t *testing.T) {
	authenticator := NewNoAuthAuthenticator()
	assert.Equal(t, AuthTypeNoAuth, authenticator.AuthenticationType())
	assert.NoError(t, authenticator.Validate())

	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	assert.NoError(t, authenticator.Authenticate(req))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestBasicAuthenticator(t *testing.T) {
	authenticator, err := NewBasicAuthenticator("user", "secret")
	require.NoError(t, err)
	assert.Equal(t, AuthTypeBasic, authenticator.AuthenticationType())

	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	require.NoError(t, authenticator.Authenticate(req))

	username, password, ok := req.BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "user", username)
	assert.Equal(t, "secret", password)
}

func TestBasicAuthenticatorValidation(t *testing.T) {
	testcases := []struct {
		name     string
		username string
		password string
	}{
		{"missing username", "", "secret"},
		{"missing password", "user", ""},
		{"username leading brace", "{user", "secret"},
		{"username trailing quote", `user"`, "secret"},
		{"password leading quote", "user", `"secret`},
		{"password trailing brace", "user", "secret}"},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewBasicAuthenticator(tc.username, tc.password)
			require.Error(t, err)

			var configErr *common.ConfigurationError
			assert.ErrorAs(t, err, &configErr)
		})
	}
}

func TestIAMAuthenticatorValidation(t *testing.T) {
	_, err := NewIAMAuthenticator(`{bad-key}`, "", "", nil)
	require.Error(t, err)

	var configErr *common.ConfigurationError
	assert.ErrorAs(t, err, &configErr)
	assert.Contains(t, configErr.Field, "apikey")
}

func TestIAMAuthenticatorRequiresCredentialMaterial(t *testing.T) {
	authenticator, err := NewIAMAuthenticator("", "", "", nil)
	require.NoError(t, err)
	assert.Error(t, authenticator.Validate())
}

func TestIAMAuthenticatorSetsBearerHeader(t *testing.T) {
	authenticator, err := NewIAMAuthenticator("", "caller-managed-token", "", nil)
	require.NoError(t, err)
	assert.Equal(t, AuthTypeIAM, authenticator.AuthenticationType())

	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	require.NoError(t, authenticator.Authenticate(req))
	assert.Equal(t, "Bearer caller-managed-token", req.Header.Get("Authorization"))
}

func TestAuthenticationErrorUnwrap(t *testing.T) {
	cause := assert.AnError
	err := NewAuthenticationError("token exchange request failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "token exchange request failed")
}
