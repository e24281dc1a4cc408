package gcp

import (
	"strings"

	"google.golang.org/api/option"
)

// ClientOptions returns explicit credentials from cfg. Inline JSON wins over
// a file path; with neither, the client falls back to application default
// credentials.
func ClientOptions(cfg ObjectStorageConfig) []option.ClientOption {
	creds := strings.TrimSpace(cfg.CredentialsJSON)
	if creds == "" {
		creds = strings.TrimSpace(cfg.CredentialsFile)
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}
