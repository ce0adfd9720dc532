package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

var envFiles = []string{".env", ".env.local"}

// loadEnvFiles loads variables from .env and .env.local in the working
// directory. Existing process environment variables are never overwritten.
func loadEnvFiles() ([]string, error) {
	var present []string
	for _, p := range envFiles {
		if _, err := os.Stat(p); err == nil {
			present = append(present, p)
		}
	}
	if len(present) == 0 {
		return nil, errors.New("no .env file found")
	}
	if err := godotenv.Load(present...); err != nil {
		return nil, err
	}
	return present, nil
}
