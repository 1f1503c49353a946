package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/gofrs/flock"

	"github.com/grantflow/grantflow/pkg/errors"
)

// LocalStore persists credentials as one JSON file per (service, user) under
// the XDG data directory, and reads operator-provisioned OAuth app config
// from the XDG config directory. Writes go through a temp file + rename
// guarded by a file lock, so a racing reader never observes a partial write.
type LocalStore struct {
	dataDir   string
	configDir string
}

const appDirName = "grantflow"

// NewLocalStore creates a store rooted at the default XDG locations.
func NewLocalStore() (*LocalStore, error) {
	dataDir := filepath.Join(xdg.DataHome, appDirName, "credentials")
	configDir := filepath.Join(xdg.ConfigHome, appDirName, "oauth")
	return NewLocalStoreAt(dataDir, configDir)
}

// NewLocalStoreAt creates a store rooted at explicit directories. Used by
// tests and by deployments that relocate state.
func NewLocalStoreAt(dataDir, configDir string) (*LocalStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("unable to create credentials directory: %w", err)
	}
	return &LocalStore{dataDir: dataDir, configDir: configDir}, nil
}

// Hosted always returns false for the local store.
func (*LocalStore) Hosted() bool {
	return false
}

// escape makes service/user safe to use as a single path element.
func escape(s string) string {
	return url.PathEscape(strings.ToLower(s))
}

func (s *LocalStore) credentialPath(serviceName, userID string) string {
	return filepath.Join(s.dataDir, escape(serviceName), escape(userID)+".json")
}

func (s *LocalStore) oauthConfigPath(serviceName string) string {
	return filepath.Join(s.configDir, escape(serviceName)+".json")
}

// GetOAuthConfig reads the app config for a service from the config dir.
func (s *LocalStore) GetOAuthConfig(_ context.Context, serviceName string) (*OAuthConfig, error) {
	path := s.oauthConfigPath(serviceName)
	data, err := os.ReadFile(path) // #nosec G304 - path is derived from escaped service name
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewConfigurationError(
				fmt.Sprintf("no OAuth app configured for service %q (expected config at %s)", serviceName, path), nil)
		}
		return nil, fmt.Errorf("failed to read OAuth config for %s: %w", serviceName, err)
	}

	var cfg OAuthConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewConfigurationError(
			fmt.Sprintf("malformed OAuth config for service %q", serviceName), err)
	}
	if cfg.ClientID == "" {
		return nil, errors.NewConfigurationError(
			fmt.Sprintf("OAuth config for service %q is missing client_id", serviceName), nil)
	}
	return &cfg, nil
}

// GetCredential returns the stored credential, or (nil, nil) when absent.
func (s *LocalStore) GetCredential(_ context.Context, serviceName, userID string) (*Credential, error) {
	data, err := os.ReadFile(s.credentialPath(serviceName, userID)) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credential for %s/%s: %w", serviceName, userID, err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("malformed credential for %s/%s: %w", serviceName, userID, err)
	}
	return &cred, nil
}

// SaveCredential persists a credential with full-overwrite semantics.
func (s *LocalStore) SaveCredential(_ context.Context, serviceName, userID string, cred *Credential) error {
	path := s.credentialPath(serviceName, userID)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("unable to create service directory: %w", err)
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	// Serialize writers; readers stay lock-free because the rename below is
	// atomic on POSIX filesystems.
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock credential file: %w", err)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(dir, ".credential-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set credential file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

// DeleteCredential removes the stored credential, if any.
func (s *LocalStore) DeleteCredential(_ context.Context, serviceName, userID string) error {
	err := os.Remove(s.credentialPath(serviceName, userID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete credential for %s/%s: %w", serviceName, userID, err)
	}
	return nil
}

// ListCredentials returns the user IDs with stored credentials for a service.
func (s *LocalStore) ListCredentials(_ context.Context, serviceName string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, escape(serviceName)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list credentials for %s: %w", serviceName, err)
	}

	users := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		user, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

// SaveOAuthConfig writes the app config for a service. Provisioning helper
// used by the CLI; connectors never call it.
func (s *LocalStore) SaveOAuthConfig(_ context.Context, serviceName string, cfg *OAuthConfig) error {
	if err := os.MkdirAll(s.configDir, 0700); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode OAuth config: %w", err)
	}
	if err := os.WriteFile(s.oauthConfigPath(serviceName), data, 0600); err != nil {
		return fmt.Errorf("failed to write OAuth config: %w", err)
	}
	return nil
}
