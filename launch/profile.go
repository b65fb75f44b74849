// Package launch composes a concrete game invocation from a manifest, a
// resource profile and an account, and supervises the spawned process.
package launch

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jugelauncher/launcher/common"
)

// Profile is the resource shape one launch runs under. It is an input to
// composition, not a settings form.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	VersionID   string `json:"versionId"`
	GameDir     string `json:"gameDir,omitempty"`
	JavaPath    string `json:"javaPath,omitempty"`
	MinMemoryMB int    `json:"minMemory"`
	MaxMemoryMB int    `json:"maxMemory"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	JavaArgs    string `json:"javaArgs,omitempty"`
}

// DefaultProfile is what a launch without a configured profile runs under.
func DefaultProfile(versionID string) *Profile {
	return &Profile{
		ID:          versionID,
		Name:        versionID,
		VersionID:   versionID,
		MinMemoryMB: 1024,
		MaxMemoryMB: 4096,
		Width:       854,
		Height:      480,
		JavaArgs:    "-XX:+UseG1GC",
	}
}

func (p *Profile) javaPath() string {
	if p.JavaPath != "" {
		return p.JavaPath
	}
	return "java"
}

func (p *Profile) extraJavaArgs() []string {
	return strings.Fields(p.JavaArgs)
}

// Profiles persists resource profiles as JSON under <BaseDir>/profiles.
type Profiles struct {
	BaseDir string
}

func (s *Profiles) path(id string) string {
	return filepath.Join(s.BaseDir, "profiles", id+".json")
}

func (s *Profiles) Save(p *Profile) error {
	return common.WriteJSON(s.path(p.ID), p)
}

func (s *Profiles) Load(id string) (*Profile, error) {
	p := &Profile{}
	if err := common.ReadJSON(s.path(id), p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Profiles) Delete(id string) error {
	return os.Remove(s.path(id))
}

func (s *Profiles) List() []*Profile {
	entries, err := os.ReadDir(filepath.Join(s.BaseDir, "profiles"))
	if err != nil {
		return nil
	}
	var profiles []*Profile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		p, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles
}

// ForVersion finds the profile pinned to a version, or nil.
func (s *Profiles) ForVersion(versionID string) *Profile {
	for _, p := range s.List() {
		if p.VersionID == versionID {
			return p
		}
	}
	return nil
}
