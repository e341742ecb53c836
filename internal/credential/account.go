// Package credential mints short-lived gateway access tokens from a service
// account key using the OAuth2 JWT-bearer grant.
package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"dream-push-backend/config"
	"dream-push-backend/internal/pusherr"
)

// ServiceAccount is the subset of a service account key file the minter needs.
type ServiceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

// ParseServiceAccount decodes a service account key. Missing fields are
// reported by Validate, which the minter runs before every assertion.
func ParseServiceAccount(raw []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, pusherr.Configuration.Wrap(fmt.Errorf("decode service account: %w", err))
	}
	return &sa, nil
}

// LoadServiceAccount reads the key from inline JSON when set, else from the file.
func LoadServiceAccount(cfg config.FirebaseConfig) (*ServiceAccount, error) {
	if strings.TrimSpace(cfg.ServiceAccountJSON) != "" {
		return ParseServiceAccount([]byte(cfg.ServiceAccountJSON))
	}
	if cfg.ServiceAccountFile == "" {
		return nil, pusherr.Configuration.New("no service account configured")
	}
	raw, err := os.ReadFile(cfg.ServiceAccountFile)
	if err != nil {
		return nil, pusherr.Configuration.Wrap(fmt.Errorf("read service account file: %w", err))
	}
	return ParseServiceAccount(raw)
}

// Validate reports the first missing required field.
func (sa *ServiceAccount) Validate() error {
	switch {
	case strings.TrimSpace(sa.ClientEmail) == "":
		return pusherr.Configuration.New("service account is missing client_email")
	case strings.TrimSpace(sa.PrivateKey) == "":
		return pusherr.Configuration.New("service account is missing private_key")
	case strings.TrimSpace(sa.ProjectID) == "":
		return pusherr.Configuration.New("service account is missing project_id")
	}
	return nil
}
