package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validManifestJSON() []byte {
	return []byte(`{
		"id": "1.8.9-test",
		"type": "release",
		"mainClass": "net.minecraft.client.main.Main",
		"minecraftArguments": "--username ${auth_player_name} --version ${version_name}",
		"libraries": [
			{"name": "local:netty:1.0.0", "url": "https://cdn.example.com/libraries/netty.jar", "sha1": "da39a3ee5e6b4b0d3255bfef95601890afd80709", "size": 42}
		],
		"downloads": {
			"client": {"sha1": "abc123", "size": 1000, "url": "https://cdn.example.com/client.jar"}
		}
	}`)
}

func TestParseValid(t *testing.T) {
	m, err := Parse(validManifestJSON())
	require.NoError(t, err)
	assert.Equal(t, "1.8.9-test", m.ID)
	assert.Equal(t, "release", m.Type)
	assert.Equal(t, "abc123", m.Downloads.Client.SHA1)
	assert.Equal(t, int64(1000), m.Downloads.Client.Size)
	require.Len(t, m.Libraries, 1)
	assert.Equal(t, "local:netty:1.0.0", m.Libraries[0].Name)
}

func TestParseRejectsBadJSON(t *testing.T) {
	_, err := Parse([]byte("{"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseRejectsMissingHash(t *testing.T) {
	raw := []byte(`{
		"id": "v1", "mainClass": "Main",
		"downloads": {"client": {"sha1": "", "size": 10, "url": "https://cdn.example.com/c.jar"}}
	}`)
	_, err := Parse(raw)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseRejectsZeroSize(t *testing.T) {
	raw := []byte(`{
		"id": "v1", "mainClass": "Main",
		"downloads": {"client": {"sha1": "abc", "size": 0, "url": "https://cdn.example.com/c.jar"}}
	}`)
	_, err := Parse(raw)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseRejectsLibraryWithoutHash(t *testing.T) {
	raw := []byte(`{
		"id": "v1", "mainClass": "Main",
		"libraries": [{"name": "a:b:1", "url": "https://cdn.example.com/b.jar", "sha1": "", "size": 5}],
		"downloads": {"client": {"sha1": "abc", "size": 10, "url": "https://cdn.example.com/c.jar"}}
	}`)
	_, err := Parse(raw)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseRejectsMissingMainClass(t *testing.T) {
	raw := []byte(`{
		"id": "v1",
		"downloads": {"client": {"sha1": "abc", "size": 10, "url": "https://cdn.example.com/c.jar"}}
	}`)
	_, err := Parse(raw)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store := &LocalStore{BaseDir: t.TempDir()}
	m, err := Parse(validManifestJSON())
	require.NoError(t, err)
	require.NoError(t, store.Save(m))

	loaded, err := store.Load(m.ID)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)

	installed := store.Installed()
	require.Len(t, installed, 1)
	assert.Equal(t, m.ID, installed[0].ID)
	assert.Equal(t, "release", installed[0].Type)
}

func TestInstalledSkipsDirectoriesWithoutManifest(t *testing.T) {
	store := &LocalStore{BaseDir: t.TempDir()}
	assert.Empty(t, store.Installed())
}
