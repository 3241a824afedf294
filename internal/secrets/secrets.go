// Package secrets resolves credentials from mounted secret files or
// environment references. Secret values are never logged.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/logger"
)

const (
	// maxSecretFileSize limits secret file reads; secrets are tokens and
	// passwords, not documents.
	maxSecretFileSize = 64 * 1024
)

func secretError(err error, source string) error {
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Context("source", source).
		Build()
}

// ExpandString expands ${VAR} and ${VAR:-default} references in s.
// A referenced variable that is unset and has no default is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", secretError(fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", ")), "env")
	}
	return expanded, nil
}

// ReadFile reads a secret from a file such as /run/secrets/mysql_password.
// Trailing newlines are trimmed. Files readable by group or other are
// accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", secretError(errors.NewStd("secret file path is empty"), "file")
	}
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		return "", secretError(fmt.Errorf("stat secret file %s: %w", cleanPath, err), "file")
	}
	if !info.Mode().IsRegular() {
		return "", secretError(fmt.Errorf("secret path is not a regular file: %s", cleanPath), "file")
	}
	if info.Size() > maxSecretFileSize {
		return "", secretError(fmt.Errorf("secret file too large (max %d bytes): %s", maxSecretFileSize, cleanPath), "file")
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Global().Module("secrets").Warn("secret file has group/other permissions",
			logger.String("path", cleanPath),
			logger.String("perms", fmt.Sprintf("%04o", perm)))
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", secretError(fmt.Errorf("read secret file %s: %w", cleanPath, err), "file")
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", secretError(fmt.Errorf("secret file is empty: %s", cleanPath), "file")
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}

// Field names one credential for ResolveAll.
type Field struct {
	Name     string
	FilePath string
	Value    *string
}

// ResolveAll resolves every field in place. Errors name the field but never
// its value.
func ResolveAll(fields ...Field) error {
	var errs []error
	for _, f := range fields {
		secret, err := Resolve(f.FilePath, *f.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		*f.Value = secret
	}
	return errors.Join(errs...)
}
