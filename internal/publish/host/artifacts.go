package host

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/go-github/v73/github"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

// Retry is the fixed per-artifact retry policy.
type Retry struct {
	Attempts uint
	Delay    time.Duration
}

// DefaultRetry tries each artifact three times, one second apart.
var DefaultRetry = Retry{Attempts: 3, Delay: time.Second}

// ArtifactResult reports one artifact upload.
type ArtifactResult struct {
	Success  bool   `json:"success"`
	Name     string `json:"artifact_name"`
	URL      string `json:"url,omitempty"`
	Checksum string `json:"blake3,omitempty"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// Checksum returns the hex BLAKE3 digest of the file at path.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// UploadArtifacts uploads every path with bounded concurrency and blocks
// until each upload has settled. Results keep the order of paths.
func (p *Publisher) UploadArtifacts(ctx context.Context, releaseID int64, paths []string) []ArtifactResult {
	results := make([]ArtifactResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = p.uploadOne(gctx, releaseID, path)
			return nil
		})
	}
	_ = g.Wait() // uploads report through results, never through the group

	return results
}

func (p *Publisher) uploadOne(ctx context.Context, releaseID int64, path string) ArtifactResult {
	name := filepath.Base(path)
	result := ArtifactResult{Name: name}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		result.Error = fmt.Sprintf("artifact %s not found", path)
		return result
	}

	sum, err := Checksum(path)
	if err != nil {
		result.Error = fmt.Sprintf("failed to checksum %s: %v", path, err)
		return result
	}
	result.Checksum = sum

	opts := &github.UploadOptions{Name: name, MediaType: mediaType(name)}
	asset, err := backoff.Retry(ctx, func() (*github.ReleaseAsset, error) {
		result.Attempts++
		f, err := os.Open(path)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		defer f.Close()

		asset, _, err := p.client.Repositories.UploadReleaseAsset(ctx, p.cfg.Owner, p.cfg.Repo, releaseID, opts, f)
		if err != nil {
			p.logger.Warn("artifact upload attempt failed", "artifact", name, "attempt", result.Attempts, "error", err)
		}
		return asset, err
	}, backoff.WithBackOff(backoff.NewConstantBackOff(p.cfg.Retry.Delay)), backoff.WithMaxTries(p.cfg.Retry.Attempts))
	if err != nil {
		result.Error = fmt.Sprintf("upload failed after %d attempt(s): %v", result.Attempts, err)
		return result
	}

	result.Success = true
	result.URL = asset.GetBrowserDownloadURL()
	p.logger.Info("artifact uploaded", "artifact", name, "blake3", sum)
	return result
}

func mediaType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
