package runtime

import (
	"os"

	"github.com/joho/godotenv"
)

func Getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// LoadDotenv reads .env style files into the process environment without overriding
// variables that are already set. It reports whether any file was loaded.
func LoadDotenv(files ...string) bool {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return false
	}
	return godotenv.Load(present...) == nil
}
