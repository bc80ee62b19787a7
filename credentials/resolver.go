package credentials

import (
	"strings"

	"github.com/ibmcloud-go/sdk-core/common"
)

const (
	// icpPrefix marks a credential string as a literal basic-auth password
	// for on-premises installs rather than an IAM api key.
	icpPrefix = "icp-"

	// apikeyUsername is the fixed basic-auth username paired with an
	// icp-prefixed key.
	apikeyUsername = "apikey"
)

// ResolveOptions carries the constructor-supplied credential fields plus the
// lookup names for the file and catalog sources.
type ResolveOptions struct {
	URL      string
	Username string
	Password string

	// APIKey is the preferred way to pass an api key; it outranks every
	// other source.
	APIKey string

	// IAMApiKey and IAMAccessToken are the direct IAM fields, consulted when
	// neither APIKey nor Username/Password were given.
	IAMApiKey      string
	IAMAccessToken string
	IAMURL         string

	// DisplayName selects matching lines in a credentials file
	// (spaces replaced with underscores, lowercased).
	DisplayName string

	// ServiceName is the key looked up in the VCAP service catalog.
	ServiceName string

	// DisableVCAPServices skips the catalog source entirely.
	DisableVCAPServices bool
}

// Resolve merges the explicit fields, the credentials file and the VCAP
// service catalog into one finalized Credentials value. Sources are
// consulted top to bottom and a later source is only read when the earlier
// ones left both username/password and IAM mode unset. Resolution fails with
// a ConfigurationError when no valid combination is found or any credential
// string starts or ends with a bracket or quote.
func Resolve(options ResolveOptions, env Environment) (*Credentials, error) {
	if env == nil {
		env = OSEnvironment{}
	}

	creds := &Credentials{IAMURL: options.IAMURL}
	if err := creds.setURL(options.URL); err != nil {
		return nil, err
	}

	// 1-3. Credentials passed explicitly.
	if err := applyExplicit(creds, options); err != nil {
		return nil, err
	}

	// 4. Credentials file.
	if options.DisplayName != "" && !creds.resolved() {
		serviceName := strings.ToLower(strings.ReplaceAll(options.DisplayName, " ", "_"))
		if err := loadFromCredentialFile(creds, serviceName, "=", env); err != nil {
			return nil, err
		}
	}

	// 5. VCAP service catalog.
	if !options.DisableVCAPServices && !creds.resolved() {
		if err := loadFromVCAPServices(creds, options.ServiceName, env); err != nil {
			return nil, err
		}
	}

	// The file source dispatches line by line and can populate both modes;
	// an api key outranks username/password, matching the explicit-argument
	// precedence.
	if creds.UseTokenManager() {
		creds.Username = ""
		creds.Password = ""
	}

	if !creds.UseBasicAuth() && !creds.UseTokenManager() {
		return nil, common.NewConfigurationError("credentials",
			"you must specify an IAM api key or username and password service credentials")
	}
	return creds, nil
}

// applyExplicit evaluates the three explicit-argument branches. The two
// icp-prefix special cases are not mirror images: an icp-prefixed api key
// becomes a basic-auth password, while username "apikey" with a non-icp
// password is redirected into IAM mode.
func applyExplicit(creds *Credentials, options ResolveOptions) error {
	switch {
	case options.APIKey != "":
		if strings.HasPrefix(options.APIKey, icpPrefix) {
			return creds.setUsernameAndPassword(apikeyUsername, options.APIKey)
		}
		creds.IAMAccessToken = options.IAMAccessToken
		return creds.setIAMApiKey(options.APIKey)

	case options.Username != "" && options.Password != "":
		if options.Username == apikeyUsername && !strings.HasPrefix(options.Password, icpPrefix) {
			creds.IAMAccessToken = options.IAMAccessToken
			return creds.setIAMApiKey(options.Password)
		}
		return creds.setUsernameAndPassword(options.Username, options.Password)

	case options.IAMAccessToken != "" || options.IAMApiKey != "":
		if options.IAMApiKey != "" && strings.HasPrefix(options.IAMApiKey, icpPrefix) {
			return creds.setUsernameAndPassword(apikeyUsername, options.IAMApiKey)
		}
		creds.IAMAccessToken = options.IAMAccessToken
		if options.IAMApiKey != "" {
			return creds.setIAMApiKey(options.IAMApiKey)
		}
		return nil
	}
	return nil
}
