package utils

import (
	"fmt"
	"os"
)

func FileExists(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("unable to stat %q: %w", path, err)
	}
	return true, nil
}
