package download

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jugelauncher/launcher/events"
	"github.com/jugelauncher/launcher/manifest"
	"github.com/jugelauncher/launcher/protocol"
)

func sha1Hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

func newTestDownloader(t *testing.T, handler http.Handler) (*Downloader, *httptest.Server, *events.Bus) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	d := &Downloader{
		Client: &protocol.Client{},
		Store:  &Store{BaseDir: t.TempDir()},
		Bus:    bus,
	}
	return d, server, bus
}

func TestEnsureDownloadsAndVerifies(t *testing.T) {
	payload := []byte("the client artifact bytes")
	var fetches atomic.Int64
	d, server, _ := newTestDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write(payload)
	}))

	desc := Descriptor{
		Artifact: "client",
		URL:      server.URL + "/client.jar",
		SHA1:     sha1Hex(payload),
		Size:     int64(len(payload)),
		Path:     filepath.Join(d.Store.BaseDir, "versions", "v1", "v1.jar"),
	}
	path, err := d.Ensure(context.Background(), desc)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// Second call is a cache hit: no network fetch.
	_, err = d.Ensure(context.Background(), desc)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fetches.Load())
}

func TestEnsureIntegrityMismatchLeavesNoFinalFile(t *testing.T) {
	payload := []byte("tampered bytes")
	d, server, _ := newTestDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))

	desc := Descriptor{
		Artifact: "client",
		URL:      server.URL + "/client.jar",
		SHA1:     "abc123",
		Size:     int64(len(payload)),
		Path:     filepath.Join(d.Store.BaseDir, "versions", "v1", "v1.jar"),
	}
	_, err := d.Ensure(context.Background(), desc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrityMismatch)
	assert.Contains(t, err.Error(), "abc123")
	assert.Contains(t, err.Error(), sha1Hex(payload))
	_, statErr := os.Stat(desc.Path)
	assert.True(t, os.IsNotExist(statErr))
	// The discarded temporary is gone too.
	_, statErr = os.Stat(desc.Path + ".part")
	assert.True(t, os.IsNotExist(statErr))
}

func TestEnsureSizeMismatchIsIntegrityFailure(t *testing.T) {
	payload := []byte("short")
	d, server, _ := newTestDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))

	desc := Descriptor{
		Artifact: "client",
		URL:      server.URL + "/client.jar",
		SHA1:     sha1Hex(payload),
		Size:     int64(len(payload)) + 100,
		Path:     filepath.Join(d.Store.BaseDir, "libraries", "short.jar"),
	}
	_, err := d.Ensure(context.Background(), desc)
	assert.ErrorIs(t, err, ErrIntegrityMismatch)
	_, statErr := os.Stat(desc.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestEnsureOutlivesJSONClientTimeout(t *testing.T) {
	payload := []byte("slow but steady artifact")
	d, server, _ := newTestDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, b := range payload {
			w.Write([]byte{b})
			flusher.Flush()
			time.Sleep(10 * time.Millisecond)
		}
	}))
	// The shared JSON client's whole-request timeout must not apply to a
	// healthy transfer that merely takes longer than it.
	d.Client.Client = &http.Client{Timeout: 50 * time.Millisecond}

	desc := Descriptor{
		Artifact: "client",
		URL:      server.URL + "/client.jar",
		SHA1:     sha1Hex(payload),
		Size:     int64(len(payload)),
		Path:     filepath.Join(d.Store.BaseDir, "versions", "v1", "v1.jar"),
	}
	path, err := d.Ensure(context.Background(), desc)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestEnsureOversizedResponseFailsWithoutOvershoot(t *testing.T) {
	declared := []byte("declared content")
	payload := append(append([]byte{}, declared...), []byte(" plus trailing garbage")...)
	d, server, bus := newTestDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	ch, cancel := bus.Subscribe()
	defer cancel()

	desc := Descriptor{
		Artifact: "client",
		URL:      server.URL + "/client.jar",
		SHA1:     sha1Hex(declared),
		Size:     int64(len(declared)),
		Path:     filepath.Join(d.Store.BaseDir, "versions", "v1", "v1.jar"),
	}
	_, err := d.Ensure(context.Background(), desc)
	assert.ErrorIs(t, err, ErrIntegrityMismatch)

	// No progress event ever exceeds the declared total.
	for len(ch) > 0 {
		progress := (<-ch).(events.Progress)
		assert.LessOrEqual(t, progress.Bytes, progress.Total)
		assert.LessOrEqual(t, progress.Percent, float64(100))
	}
	_, statErr := os.Stat(desc.Path)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(desc.Path + ".part")
	assert.True(t, os.IsNotExist(statErr))
}

func TestEnsureProgressIsMonotonic(t *testing.T) {
	payload := make([]byte, chunkSize*3+17)
	for i := range payload {
		payload[i] = byte(i)
	}
	d, server, bus := newTestDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	ch, cancel := bus.Subscribe()
	defer cancel()

	desc := Descriptor{
		Artifact: "client",
		URL:      server.URL + "/client.jar",
		SHA1:     sha1Hex(payload),
		Size:     int64(len(payload)),
		Path:     filepath.Join(d.Store.BaseDir, "versions", "v1", "v1.jar"),
	}
	_, err := d.Ensure(context.Background(), desc)
	require.NoError(t, err)

	var last int64 = -1
	sawCompletion := false
	for len(ch) > 0 {
		progress := (<-ch).(events.Progress)
		assert.Equal(t, "client", progress.Artifact)
		assert.GreaterOrEqual(t, progress.Bytes, last)
		last = progress.Bytes
		if progress.Percent >= 100 {
			sawCompletion = true
		}
	}
	assert.Equal(t, desc.Size, last)
	assert.True(t, sawCompletion)
}

func TestEnsureCancelledLeavesNoFinalFile(t *testing.T) {
	payload := make([]byte, chunkSize*4)
	blocked := make(chan struct{})
	d, server, _ := newTestDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload[:chunkSize])
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		<-blocked
	}))
	defer close(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		cancel()
	}()
	desc := Descriptor{
		Artifact: "client",
		URL:      server.URL + "/client.jar",
		SHA1:     sha1Hex(payload),
		Size:     int64(len(payload)),
		Path:     filepath.Join(d.Store.BaseDir, "versions", "v1", "v1.jar"),
	}
	_, err := d.Ensure(ctx, desc)
	require.Error(t, err)
	_, statErr := os.Stat(desc.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func batchManifest(serverURL string, clientPayload, libPayload []byte) *manifest.Manifest {
	return &manifest.Manifest{
		ID:        "v1",
		Type:      "release",
		MainClass: "Main",
		Libraries: []manifest.Library{{
			Name: "local:netty:1.0.0",
			URL:  serverURL + "/libraries/netty.jar",
			SHA1: sha1Hex(libPayload),
			Size: int64(len(libPayload)),
		}},
		Downloads: manifest.Downloads{Client: manifest.Download{
			SHA1: sha1Hex(clientPayload),
			Size: int64(len(clientPayload)),
			URL:  serverURL + "/client.jar",
		}},
	}
}

func TestInstallBatchFetchesClientAndLibraries(t *testing.T) {
	clientPayload := []byte("client bytes")
	libPayload := []byte("library bytes")
	mux := http.NewServeMux()
	mux.HandleFunc("/client.jar", func(w http.ResponseWriter, r *http.Request) { w.Write(clientPayload) })
	mux.HandleFunc("/libraries/netty.jar", func(w http.ResponseWriter, r *http.Request) { w.Write(libPayload) })
	d, server, _ := newTestDownloader(t, mux)

	m := batchManifest(server.URL, clientPayload, libPayload)
	require.NoError(t, d.InstallBatch(context.Background(), m))

	got, err := os.ReadFile(d.Store.ClientPath("v1"))
	require.NoError(t, err)
	assert.Equal(t, clientPayload, got)
	got, err = os.ReadFile(d.Store.LibraryPath(m.Libraries[0]))
	require.NoError(t, err)
	assert.Equal(t, libPayload, got)
}

func TestInstallBatchRetainsVerifiedFilesOnFailure(t *testing.T) {
	clientPayload := []byte("client bytes")
	mux := http.NewServeMux()
	mux.HandleFunc("/client.jar", func(w http.ResponseWriter, r *http.Request) { w.Write(clientPayload) })
	mux.HandleFunc("/libraries/netty.jar", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("corrupted library"))
	})
	d, server, _ := newTestDownloader(t, mux)

	m := batchManifest(server.URL, clientPayload, []byte("library bytes"))
	err := d.InstallBatch(context.Background(), m)
	assert.ErrorIs(t, err, ErrIntegrityMismatch)

	// The verified client survives for the next attempt.
	_, statErr := os.Stat(d.Store.ClientPath("v1"))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(d.Store.LibraryPath(m.Libraries[0]))
	assert.True(t, os.IsNotExist(statErr))
}
