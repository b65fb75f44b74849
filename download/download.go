package download

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jugelauncher/launcher/events"
	"github.com/jugelauncher/launcher/manifest"
	"github.com/jugelauncher/launcher/protocol"
)

const (
	chunkSize = 32 * 1024

	// Concurrent library fetches per install batch.
	maxParallelFetches = 4
)

// ErrIntegrityMismatch is returned when downloaded bytes do not hash to the
// descriptor's expected SHA1. No file exists at the final path afterwards.
var ErrIntegrityMismatch = errors.New("integrity mismatch")

// Downloader ensures descriptors are present and hash-valid in the content
// store. Safe for concurrent use; concurrent callers for the same
// destination path join one in-flight fetch instead of racing writes.
type Downloader struct {
	Client *protocol.Client
	Store  *Store
	Bus    *events.Bus
	Log    *logrus.Logger

	group singleflight.Group
}

func (d *Downloader) logger() *logrus.Logger {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	return d.Log
}

// Ensure makes the descriptor's artifact present and verified at its final
// path and returns that path. A present, hash-valid file is a cache hit: no
// network call, no progress events. A retried Ensure after a partial batch
// is therefore a no-op for everything already verified.
func (d *Downloader) Ensure(ctx context.Context, desc Descriptor) (string, error) {
	if desc.Verified() {
		d.logger().WithField("artifact", desc.Artifact).Debug("cache hit, skipping download")
		return desc.Path, nil
	}
	_, err, _ := d.group.Do(desc.Path, func() (interface{}, error) {
		// Re-check under the flight lock: a joined caller may arrive
		// after the first one finished verifying.
		if desc.Verified() {
			return nil, nil
		}
		return nil, d.fetch(ctx, desc)
	})
	if err != nil {
		return "", err
	}
	return desc.Path, nil
}

func (d *Downloader) fetch(ctx context.Context, desc Descriptor) error {
	if err := os.MkdirAll(filepath.Dir(desc.Path), 0o775); err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.URL, nil)
	if err != nil {
		return err
	}
	// Artifact bodies can legitimately stream for longer than the JSON
	// client's whole-request timeout allows; ctx bounds the transfer.
	response, err := d.Client.StreamClient().Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %v: http %v", desc.URL, response.StatusCode)
	}

	tmpPath := desc.Path + ".part"
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o664)
	if err != nil {
		return err
	}
	sum, err := d.stream(desc, response.Body, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return err
	}
	if sum != desc.SHA1 {
		os.Remove(tmpPath)
		return fmt.Errorf("%w for %v: expected %v, got %v", ErrIntegrityMismatch, desc.Artifact, desc.SHA1, sum)
	}
	// Verified bytes only ever reach the final name through this rename,
	// replacing any stale partial from earlier attempts.
	if err := os.Rename(tmpPath, desc.Path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	d.publish(events.Progress{Artifact: desc.Artifact, Bytes: desc.Size, Total: desc.Size, Percent: 100})
	d.logger().WithFields(logrus.Fields{"artifact": desc.Artifact, "path": desc.Path}).Info("artifact verified")
	return nil
}

func (d *Downloader) stream(desc Descriptor, body io.Reader, out io.Writer) (string, error) {
	var transferred int64
	var hasher hash.Hash = sha1.New() //nolint:gosec // manifest content-hash format
	buf := make([]byte, chunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return "", werr
			}
			hasher.Write(buf[:n])
			transferred += int64(n)
			// Overshoot fails before any progress past the declared total
			// can be published.
			if transferred > desc.Size {
				return "", fmt.Errorf("%w for %v: expected %v bytes, got at least %v", ErrIntegrityMismatch, desc.Artifact, desc.Size, transferred)
			}
			d.publish(events.Progress{
				Artifact: desc.Artifact,
				Bytes:    transferred,
				Total:    desc.Size,
				Percent:  percent(transferred, desc.Size),
			})
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	if transferred != desc.Size {
		return "", fmt.Errorf("%w for %v: expected %v bytes, got %v", ErrIntegrityMismatch, desc.Artifact, desc.Size, transferred)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// InstallBatch ensures the manifest's client artifact and then all its
// libraries. The client comes first; libraries fetch concurrently in no
// particular order. The first hard failure aborts the batch, but everything
// already verified stays in the store for the next attempt.
func (d *Downloader) InstallBatch(ctx context.Context, m *manifest.Manifest) error {
	descriptors := d.Store.Descriptors(m)
	if _, err := d.Ensure(ctx, descriptors[0]); err != nil {
		return err
	}
	group, groupctx := errgroup.WithContext(ctx)
	group.SetLimit(maxParallelFetches)
	for _, desc := range descriptors[1:] {
		desc := desc
		group.Go(func() error {
			_, err := d.Ensure(groupctx, desc)
			return err
		})
	}
	return group.Wait()
}

func (d *Downloader) publish(e events.Event) {
	if d.Bus != nil {
		d.Bus.Publish(e)
	}
}

func percent(transferred, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(transferred) / float64(total) * 100
}
