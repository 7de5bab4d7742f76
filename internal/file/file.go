package file

import (
	"os"
	"path/filepath"
)

// Append opens name for appending, creating it and its parent directories as needed.
func Append(name string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(name, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
}
