// Package dotenv loads local .env files before config is read from the
// environment.
package dotenv

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoadFiles loads KEY=VALUE pairs from each existing file into the process
// environment. Variables already set, including ones set by an earlier file,
// are preserved. Missing files are skipped.
func LoadFiles(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat env file %q: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %q: %w", path, err)
		}
	}
	return nil
}
