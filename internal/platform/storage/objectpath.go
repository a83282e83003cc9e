package storage

import (
	"fmt"
	"strings"
)

// ObjectPath composes the object key for an uploaded asset. Objects are
// grouped by kind so bucket lifecycle rules can target each document class
// independently.
func ObjectPath(kind, assetID string) (string, error) {
	kindSegment, err := validateSegment("kind", kind)
	if err != nil {
		return "", err
	}
	idSegment, err := validateSegment("assetID", assetID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("assets/%s/%s", kindSegment, idSegment), nil
}

// SanitizeFileName normalises a client-supplied file name before it is stored
// or embedded in a Content-Disposition header. Names carrying path separators
// or traversal sequences collapse to the fallback.
func SanitizeFileName(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	if strings.ContainsAny(value, "/\\") {
		return fallback
	}
	if strings.Contains(value, "..") {
		return fallback
	}
	return value
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
