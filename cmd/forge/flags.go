package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type submitOptions struct {
	ExerciseName string
	FilePath     string
}

func validateSubmitOptions(opts submitOptions) error {
	if strings.TrimSpace(opts.ExerciseName) == "" {
		return fmt.Errorf("exercise name is required")
	}
	if strings.TrimSpace(opts.FilePath) == "" {
		return fmt.Errorf("file path is required")
	}

	abs, err := filepath.Abs(opts.FilePath)
	if err != nil {
		return fmt.Errorf("resolve file path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("source file does not exist: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("source path %s is a directory", abs)
	}

	return nil
}
