// Package credentials resolves service credentials from explicit arguments,
// a credentials file and the VCAP service catalog, by strict precedence,
// producing a finalized Credentials value used to build an authenticator.
package credentials

import (
	"net/http"

	"github.com/ibmcloud-go/sdk-core/auth"
	"github.com/ibmcloud-go/sdk-core/common"
)

// Credentials is the finalized, resolved credential set for one service
// instance. After a successful Resolve exactly one authentication mode is
// active: username/password basic auth or IAM-token mode, never both.
type Credentials struct {
	URL            string
	Username       string
	Password       string
	IAMApiKey      string
	IAMAccessToken string
	IAMURL         string
}

// UseBasicAuth reports whether the resolved mode is username/password.
func (c *Credentials) UseBasicAuth() bool {
	return c.Username != "" && c.Password != ""
}

// UseTokenManager reports whether the resolved mode is IAM-token based.
func (c *Credentials) UseTokenManager() bool {
	return c.IAMApiKey != "" || c.IAMAccessToken != ""
}

func (c *Credentials) resolved() bool {
	return c.Username != "" || c.UseTokenManager()
}

func (c *Credentials) setURL(url string) error {
	if err := common.ValidateCredential("url", url); err != nil {
		return err
	}
	c.URL = url
	return nil
}

func (c *Credentials) setUsernameAndPassword(username, password string) error {
	if err := common.ValidateCredential("username", username); err != nil {
		return err
	}
	if err := common.ValidateCredential("password", password); err != nil {
		return err
	}
	c.Username = username
	c.Password = password
	return nil
}

func (c *Credentials) setIAMApiKey(apiKey string) error {
	if err := common.ValidateCredential("apikey", apiKey); err != nil {
		return err
	}
	c.IAMApiKey = apiKey
	return nil
}

func (c *Credentials) setIAMURL(url string) error {
	if err := common.ValidateCredential("iam_url", url); err != nil {
		return err
	}
	c.IAMURL = url
	return nil
}

// NewAuthenticator builds the authenticator variant matching the resolved
// credential mode. The client, when non-nil, is used by the IAM token
// manager for its exchange calls.
func NewAuthenticator(creds *Credentials, client *http.Client) (auth.Authenticator, error) {
	switch {
	case creds.UseTokenManager():
		return auth.NewIAMAuthenticator(creds.IAMApiKey, creds.IAMAccessToken, creds.IAMURL, client)
	case creds.UseBasicAuth():
		return auth.NewBasicAuthenticator(creds.Username, creds.Password)
	default:
		return auth.NewNoAuthAuthenticator(), nil
	}
}
