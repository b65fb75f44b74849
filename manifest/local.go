package manifest

import (
	"os"
	"path/filepath"

	"github.com/jugelauncher/launcher/common"
)

// LocalVersion is one installed version found on disk.
type LocalVersion struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Path string `json:"path"`
}

// LocalStore persists resolved manifests next to their installed artifacts
// so launches work without re-fetching the publisher.
type LocalStore struct {
	BaseDir string
}

func (s *LocalStore) versionDir(id string) string {
	return filepath.Join(s.BaseDir, "versions", id)
}

func (s *LocalStore) manifestPath(id string) string {
	return filepath.Join(s.versionDir(id), "manifest.json")
}

func (s *LocalStore) Save(m *Manifest) error {
	return common.WriteJSON(s.manifestPath(m.ID), m)
}

func (s *LocalStore) Load(id string) (*Manifest, error) {
	m := &Manifest{}
	if err := common.ReadJSON(s.manifestPath(id), m); err != nil {
		return nil, err
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Installed scans the versions directory for saved manifests. Directories
// without one are skipped, they are partial installs or foreign data.
func (s *LocalStore) Installed() []LocalVersion {
	entries, err := os.ReadDir(filepath.Join(s.BaseDir, "versions"))
	if err != nil {
		return nil
	}
	var versions []LocalVersion
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		m, err := s.Load(id)
		if err != nil {
			continue
		}
		versions = append(versions, LocalVersion{
			ID:   id,
			Type: m.Type,
			Path: s.versionDir(id),
		})
	}
	return versions
}
