// Package download fetches remote artifacts into the local content store,
// verifying every byte against the manifest's expected hash before it may
// appear under its final name.
package download

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/jugelauncher/launcher/manifest"
)

// Descriptor is one artifact to ensure locally: where it comes from, what
// it must hash to, and where it lands. Identity for caching is SHA1, not
// the URL.
type Descriptor struct {
	Artifact string
	URL      string
	SHA1     string
	Size     int64
	Path     string
}

// Store is the content-addressed directory layout shared by installs and
// launches: versions/<id>/<id>.jar for clients, libraries/<file> for
// dependencies.
type Store struct {
	BaseDir string
}

func (s *Store) ClientPath(id string) string {
	return filepath.Join(s.BaseDir, "versions", id, id+".jar")
}

func (s *Store) LibraryPath(lib manifest.Library) string {
	name := filepath.Base(lib.URL)
	if name == "." || name == "/" {
		name = lib.Name + ".jar"
	}
	return filepath.Join(s.BaseDir, "libraries", name)
}

// Descriptors lists the install batch for a manifest, client artifact first.
func (s *Store) Descriptors(m *manifest.Manifest) []Descriptor {
	descriptors := []Descriptor{{
		Artifact: m.ID,
		URL:      m.Downloads.Client.URL,
		SHA1:     m.Downloads.Client.SHA1,
		Size:     m.Downloads.Client.Size,
		Path:     s.ClientPath(m.ID),
	}}
	for _, lib := range m.Libraries {
		descriptors = append(descriptors, Descriptor{
			Artifact: lib.Name,
			URL:      lib.URL,
			SHA1:     lib.SHA1,
			Size:     lib.Size,
			Path:     s.LibraryPath(lib),
		})
	}
	return descriptors
}

// Verified reports whether the file at path already satisfies the
// descriptor's hash and size.
func (d Descriptor) Verified() bool {
	info, err := os.Stat(d.Path)
	if err != nil || info.Size() != d.Size {
		return false
	}
	sum, err := hashFile(d.Path)
	return err == nil && sum == d.SHA1
}

func hashFile(path string) (string, error) {
	//nolint:gosec // SHA1 is the content-hash format of the manifest document
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
