// Package exec runs the external experiment bundle writer.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bft-labs/insitu/internal/domain"
	"github.com/bft-labs/insitu/internal/ports"
)

// DefaultBundler is the bundle writer executable looked up on PATH.
const DefaultBundler = "spacetx_biohub_writer"

// Bundler implements ports.Bundler by invoking the bundle writer CLI.
type Bundler struct {
	program string
	stdout  io.Writer
	logger  ports.Logger
}

// NewBundler creates a Bundler running program. Its standard output is
// copied to stdout when non-nil.
func NewBundler(program string, stdout io.Writer, logger ports.Logger) *Bundler {
	if program == "" {
		program = DefaultBundler
	}
	if stdout == nil {
		stdout = io.Discard
	}
	return &Bundler{program: program, stdout: stdout, logger: logger}
}

// bundleCmdArgs returns the writer's arguments. The first manifest is passed
// as the first --csv-file value; each further manifest gets its own flag.
func bundleCmdArgs(args ports.BundleArgs) []string {
	out := []string{
		"--tile-width", strconv.Itoa(args.TileWidth),
		"--tile-height", strconv.Itoa(args.TileHeight),
		"--s3-prefix", args.StoragePrefix,
		"--output-dir", args.OutputDir,
	}
	for _, m := range args.Manifests {
		out = append(out, "--csv-file", m.Name, m.Path)
	}
	return out
}

// Bundle runs the writer and waits for it to exit.
func (b *Bundler) Bundle(ctx context.Context, args ports.BundleArgs) error {
	if len(args.Manifests) == 0 {
		return fmt.Errorf("%w: no manifests to bundle", domain.ErrBundle)
	}
	argv := bundleCmdArgs(args)
	b.logger.Info("running bundle writer",
		ports.String("program", b.program),
		ports.String("args", strings.Join(argv, " ")))

	cmd := exec.CommandContext(ctx, b.program, argv...)
	cmd.Stdout = b.stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: exit code %d: %s", domain.ErrBundle, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("%w: %w", domain.ErrBundle, err)
	}
	return nil
}

var _ ports.Bundler = (*Bundler)(nil)
