package credentials

import (
	"encoding/json"

	"github.com/ibmcloud-go/sdk-core/common"
)

// vcapServicesEnvVar holds the platform-provided JSON service catalog,
// shaped {"<service-name>": [{"credentials": {...}}, ...]}.
const vcapServicesEnvVar = "VCAP_SERVICES"

type vcapBinding struct {
	Credentials map[string]interface{} `json:"credentials"`
}

// loadFromVCAPServices extracts credentials for serviceName from the VCAP
// service catalog, when present. The url is required; among the credential
// fields an api key outranks username/password, which outrank a raw access
// token, mirroring the explicit-argument precedence.
func loadFromVCAPServices(creds *Credentials, serviceName string, env Environment) error {
	raw := env.Getenv(vcapServicesEnvVar)
	if raw == "" || serviceName == "" {
		return nil
	}

	var services map[string][]vcapBinding
	if err := json.Unmarshal([]byte(raw), &services); err != nil {
		return common.NewConfigurationError(vcapServicesEnvVar, "the service catalog is not valid JSON: %s", err.Error())
	}

	bindings := services[serviceName]
	if len(bindings) == 0 || bindings[0].Credentials == nil {
		return nil
	}
	entry := bindings[0].Credentials

	url, ok := entry["url"].(string)
	if !ok {
		return common.NewConfigurationError(vcapServicesEnvVar, "the %q entry has no url", serviceName)
	}
	if err := creds.setURL(url); err != nil {
		return err
	}

	apiKey := stringField(entry, "apikey")
	if apiKey == "" {
		apiKey = stringField(entry, "iam_apikey")
	}
	username := stringField(entry, "username")
	password := stringField(entry, "password")
	accessToken := stringField(entry, "iam_access_token")

	switch {
	case apiKey != "":
		return creds.setIAMApiKey(apiKey)
	case username != "" && password != "":
		return creds.setUsernameAndPassword(username, password)
	case accessToken != "":
		creds.IAMAccessToken = accessToken
	}
	return nil
}

func stringField(entry map[string]interface{}, key string) string {
	value, _ := entry[key].(string)
	return value
}
