package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/insitu/internal/domain"
	"github.com/bft-labs/insitu/internal/ports"
)

// checksumBlockSize bounds the memory used per tile while hashing.
const checksumBlockSize = 64 << 10

// ChecksumPass computes the SHA-256 digest of tile contents.
type ChecksumPass struct {
	storage ports.Storage
	workers int
}

// NewChecksumPass creates a pass reading from storage. Workers above one hash
// tiles concurrently; results keep input order either way.
func NewChecksumPass(storage ports.Storage, workers int) *ChecksumPass {
	if workers < 1 {
		workers = 1
	}
	return &ChecksumPass{storage: storage, workers: workers}
}

// Run returns one hex digest per path, in path order. Duplicate paths are
// hashed again. The first failure aborts the pass.
func (c *ChecksumPass) Run(ctx context.Context, paths []string) ([]string, error) {
	sums := make([]string, len(paths))
	buf := make([]byte, checksumBlockSize)

	if c.workers == 1 {
		for i, p := range paths {
			sum, err := c.hash(ctx, p, buf)
			if err != nil {
				return nil, err
			}
			sums[i] = sum
		}
		return sums, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.workers)
	for i, p := range paths {
		i, p := i, p
		eg.Go(func() error {
			sum, err := c.hash(egCtx, p, make([]byte, checksumBlockSize))
			if err != nil {
				return err
			}
			sums[i] = sum
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return sums, nil
}

// hash names path in every error. Cancellation keeps the context error
// rather than ErrIO.
func (c *ChecksumPass) hash(ctx context.Context, path string, buf []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	rc, err := c.storage.Open(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", domain.ErrIO, path, err)
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, rc, buf); err != nil {
		return "", fmt.Errorf("%w: read %s: %w", domain.ErrIO, path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fill sets the digest of every row from its tile content.
func (c *ChecksumPass) Fill(ctx context.Context, rows []domain.ManifestRow) error {
	sums, err := c.Run(ctx, domain.Paths(rows))
	if err != nil {
		return err
	}
	for i := range rows {
		rows[i].SHA256 = sums[i]
	}
	return nil
}

// FillMissing hashes only the rows whose digest is not already recorded.
func (c *ChecksumPass) FillMissing(ctx context.Context, rows []domain.ManifestRow) error {
	var (
		idx   []int
		paths []string
	)
	for i, r := range rows {
		if r.SHA256 == "" {
			idx = append(idx, i)
			paths = append(paths, r.Path)
		}
	}
	if len(paths) == 0 {
		return nil
	}
	sums, err := c.Run(ctx, paths)
	if err != nil {
		return err
	}
	for k, i := range idx {
		rows[i].SHA256 = sums[k]
	}
	return nil
}
