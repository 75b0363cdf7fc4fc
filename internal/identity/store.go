// Package identity persists the local user identity across runs,
// the same way the browser build kept "livekit-user-id" in local storage.
package identity

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/voicedeck/voicedeck/internal/domain"
)

const fileName = "livekit-user-id"

type Store struct {
	path string
}

// NewStore uses the given file path, or a per-user default when empty.
func NewStore(path string) (*Store, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "voicedeck", fileName)
	}
	return &Store{path: path}, nil
}

// Load returns the stored identity, generating and persisting a fresh one on
// first use. A persist failure is not fatal: the generated identity is still
// usable for the current run.
func (s *Store) Load() (domain.User, error) {
	if raw, err := os.ReadFile(s.path); err == nil {
		if u, err := domain.NewUser(strings.TrimSpace(string(raw))); err == nil {
			return *u, nil
		}
		log.Warn().Str("module", "identity").Str("path", s.path).Msg("stored identity invalid, regenerating")
	}

	u := domain.User{ID: domain.GenerateUserID()}
	if err := s.save(u); err != nil {
		log.Warn().Err(err).Str("module", "identity").Msg("failed to persist identity")
	}
	return u, nil
}

func (s *Store) save(u domain.User) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(u.ID), 0o600)
}
