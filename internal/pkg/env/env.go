// Package env loads configuration from a .env file, with the process
// environment as fallback so containers can inject values without a file
// entry.
package env

import (
	"os"

	"github.com/joho/godotenv"
)

// Env holds the key/value pairs read from the .env file. Empty until
// SetupEnvFile has run.
var Env map[string]string

// envFilePaths are tried in order. Binaries under cmd/ run two or three
// levels below the project root.
var envFilePaths = []string{
	".env",
	"../../.env",
	"../../../.env",
}

// GetEnv returns the configured value for key. File values win over process
// environment variables; def is returned when neither is set.
func GetEnv(key, def string) string {
	if v, ok := Env[key]; ok {
		return v
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// SetupEnvFile reads the first .env file found on the known paths and panics
// when there is none.
func SetupEnvFile() {
	for _, path := range envFilePaths {
		if parsed, err := godotenv.Read(path); err == nil {
			Env = parsed
			return
		}
	}
	panic("no .env file found, create one in the project root")
}

// IsDev reports whether APP_ENV selects the development profile.
func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
