package credentials

import "os"

// Environment abstracts the ambient process environment consulted during
// credential resolution: environment variables and the filesystem locations
// a credentials file can live at. Tests supply a fake implementation so
// resolution stays hermetic.
type Environment interface {
	// Getenv returns the value of an environment variable, or "" when unset.
	Getenv(key string) string

	// UserHomeDir returns the current user's home directory.
	UserHomeDir() (string, error)

	// Getwd returns the working directory, used as the project top level.
	Getwd() (string, error)

	// ReadFile reads the named file.
	ReadFile(path string) ([]byte, error)

	// FileExists reports whether path names an existing regular file.
	FileExists(path string) bool
}

// OSEnvironment is the Environment backed by the real process environment.
type OSEnvironment struct{}

func (OSEnvironment) Getenv(key string) string {
	return os.Getenv(key)
}

func (OSEnvironment) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

func (OSEnvironment) Getwd() (string, error) {
	return os.Getwd()
}

func (OSEnvironment) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (OSEnvironment) FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
