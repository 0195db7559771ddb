package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// WriteEnvValue updates key in a dotenv file in place, keeping every
// other line untouched. A missing file is created; a missing key is
// appended.
func WriteEnvValue(path, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read env file: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(data) == 0 {
		lines = nil
	}

	entry := key + "=" + value
	replaced := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, key+"=") || strings.HasPrefix(trimmed, key+" =") {
			lines[i] = entry
			replaced = true

			break
		}
	}

	if !replaced {
		lines = append(lines, entry)
	}

	out := strings.Join(lines, "\n") + "\n"

	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}

	return nil
}
