package prefs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"lyric-player/pkg/fileutil"
)

// FileStore 把偏好保存为 TOML 文件
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) (Preferences, error) {
	p := Default()
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if _, err := toml.DecodeFile(s.path, &p); err != nil {
		return Default(), fmt.Errorf("failed to decode preferences %s: %w", s.path, err)
	}
	return p.Validate(), nil
}

func (s *FileStore) Save(ctx context.Context, p Preferences) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(p.Validate()); err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	return fileutil.WriteFileOverwrite(s.path, buf.Bytes(), 0644)
}
