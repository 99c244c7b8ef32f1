package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore keeps one JSON file per session under a data directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("token store directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(session string) string {
	// Session ids come from URL path params; keep them from escaping the dir.
	name := strings.ReplaceAll(session, string(os.PathSeparator), "_")
	name = strings.ReplaceAll(name, "..", "_")
	return filepath.Join(s.dir, name+".json")
}

func (s *FileStore) GetToken(_ context.Context, session string) (*TokenData, error) {
	raw, err := os.ReadFile(s.path(session))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var data TokenData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (s *FileStore) SetToken(_ context.Context, session string, data *TokenData) error {
	if data == nil {
		data = &TokenData{}
	}
	data.UpdatedAt = time.Now()

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(session), raw, 0o600)
}

func (s *FileStore) RemoveToken(_ context.Context, session string) error {
	err := os.Remove(s.path(session))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *FileStore) ListSessions(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var sessions []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		sessions = append(sessions, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return sessions, nil
}
