package manifest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"

	"github.com/jugelauncher/launcher/protocol"
)

// ErrUnavailable is returned when the raw manifest bytes for a version could
// not be fetched. The parse layer's ErrMalformed covers everything after the
// bytes arrived.
var ErrUnavailable = errors.New("manifest unavailable")

// Resolver fetches and parses published manifests by version id.
type Resolver struct {
	Client *protocol.Client
	// BaseURL is the root under which manifests are published as
	// <BaseURL>/<versionID>/manifest.json.
	BaseURL string
}

func (r *Resolver) manifestURL(versionID string) (string, error) {
	u, err := url.Parse(r.BaseURL)
	if err != nil {
		return "", err
	}
	u.Path = path.Join(u.Path, versionID, "manifest.json")
	return u.String(), nil
}

// Resolve fetches the manifest for versionID and validates it. A fetch
// failure wraps ErrUnavailable with the version id; the raw bytes never
// reach the caller unparsed.
func (r *Resolver) Resolve(ctx context.Context, versionID string) (*Manifest, error) {
	requestURL, err := r.manifestURL(versionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %v", ErrUnavailable, versionID, err)
	}
	var raw []byte
	if err := r.Client.GetJSON(ctx, requestURL, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v: %v", ErrUnavailable, versionID, err)
	}
	return Parse(raw)
}
