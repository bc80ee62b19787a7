package credentials

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// credentialFileEnvVar names an explicit credentials-file path.
	credentialFileEnvVar = "IBM_CREDENTIALS_FILE"

	// defaultCredentialFileName is looked for in the home directory and at
	// the project top level when no explicit path is set.
	defaultCredentialFileName = "ibm-credentials.env"
)

// credentialFilePath locates the credentials file: an explicit path from the
// environment wins, then the home directory, then the working directory.
// Returns "" when no file exists at any location.
func credentialFilePath(env Environment) string {
	if path := env.Getenv(credentialFileEnvVar); path != "" {
		return path
	}

	if home, err := env.UserHomeDir(); err == nil {
		path := filepath.Join(home, defaultCredentialFileName)
		if env.FileExists(path) {
			return path
		}
	}

	if wd, err := env.Getwd(); err == nil {
		path := filepath.Join(wd, defaultCredentialFileName)
		if env.FileExists(path) {
			return path
		}
	}

	return ""
}

// loadFromCredentialFile reads key=value lines from the located credentials
// file and applies any line whose key contains the normalized service name.
// Lines that don't split into exactly two fields are skipped.
func loadFromCredentialFile(creds *Credentials, serviceName, separator string, env Environment) error {
	path := credentialFilePath(env)
	if path == "" {
		return nil
	}

	content, err := env.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read credentials file %s: %w", path, err)
	}

	for _, line := range strings.Split(string(content), "\n") {
		parts := strings.Split(strings.TrimSpace(line), separator)
		if len(parts) != 2 {
			continue
		}
		if err := applyCredentialEntry(creds, serviceName, strings.ToLower(parts[0]), parts[1]); err != nil {
			return err
		}
	}
	return nil
}

// applyCredentialEntry dispatches one file entry on the credential keyword
// contained in its key. The branches are evaluated in this fixed order;
// "apikey" and "url" intentionally also capture the iam_apikey and iam_url
// spellings, preserving long-standing credentials-file behavior.
func applyCredentialEntry(creds *Credentials, serviceName, key, value string) error {
	if !strings.Contains(key, serviceName) {
		return nil
	}

	switch {
	case strings.Contains(key, "apikey"):
		return creds.setIAMApiKey(value)
	case strings.Contains(key, "url"):
		return creds.setURL(value)
	case strings.Contains(key, "username"):
		creds.Username = value
	case strings.Contains(key, "password"):
		creds.Password = value
	case strings.Contains(key, "iam_apikey"):
		return creds.setIAMApiKey(value)
	case strings.Contains(key, "iam_url"):
		return creds.setIAMURL(value)
	}
	return nil
}
