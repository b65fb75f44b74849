// Package manifest models the published version manifest: one installable
// game client, its library dependencies and the launch argument template.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned by Parse for structurally invalid manifests,
// before any network access happens for the artifacts they describe.
var ErrMalformed = errors.New("malformed manifest")

// Download locates one remote artifact and the identity it must verify
// against. Two downloads with the same SHA1 are the same content regardless
// of URL.
type Download struct {
	SHA1 string `json:"sha1"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// Library is a named dependency of the client artifact. Order between
// libraries is irrelevant, but all must be present before launch.
type Library struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	SHA1 string `json:"sha1"`
	Size int64  `json:"size"`
}

type Downloads struct {
	Client Download `json:"client"`
}

// Manifest identifies one installable version.
type Manifest struct {
	ID                 string    `json:"id"`
	Type               string    `json:"type"`
	MainClass          string    `json:"mainClass"`
	MinecraftArguments string    `json:"minecraftArguments"`
	Assets             string    `json:"assets,omitempty"`
	Libraries          []Library `json:"libraries"`
	Downloads          Downloads `json:"downloads"`
}

// Parse decodes and structurally validates raw manifest bytes. It rejects
// any manifest whose client artifact or libraries miss a content hash or a
// positive size, so no install attempt can start from an unverifiable
// description.
func Parse(raw []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if m.MainClass == "" {
		return fmt.Errorf("%w: %v: missing mainClass", ErrMalformed, m.ID)
	}
	if err := validateDownload(m.Downloads.Client, "client"); err != nil {
		return fmt.Errorf("%w: %v: %v", ErrMalformed, m.ID, err)
	}
	for _, lib := range m.Libraries {
		if lib.Name == "" {
			return fmt.Errorf("%w: %v: library without a name", ErrMalformed, m.ID)
		}
		if err := validateDownload(Download{SHA1: lib.SHA1, Size: lib.Size, URL: lib.URL}, lib.Name); err != nil {
			return fmt.Errorf("%w: %v: %v", ErrMalformed, m.ID, err)
		}
	}
	return nil
}

func validateDownload(d Download, name string) error {
	if d.URL == "" {
		return fmt.Errorf("artifact %v has no url", name)
	}
	if d.SHA1 == "" {
		return fmt.Errorf("artifact %v has no content hash", name)
	}
	if d.Size <= 0 {
		return fmt.Errorf("artifact %v has size %v", name, d.Size)
	}
	return nil
}
