package env

import (
	"fmt"

	"github.com/joho/godotenv"
)

// LoadDotEnv parses a .env file and returns key-value pairs without touching
// the process environment.
func LoadDotEnv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read env file: %w", err)
	}
	return vars, nil
}

// LoadDotEnvFiles reads several files in order; later files win.
func LoadDotEnvFiles(paths ...string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, p := range paths {
		vars, err := LoadDotEnv(p)
		if err != nil {
			return nil, err
		}
		for k, v := range vars {
			merged[k] = v
		}
	}
	return merged, nil
}
