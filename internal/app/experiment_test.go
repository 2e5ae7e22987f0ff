package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/bft-labs/insitu/internal/adapters/memory"
	"github.com/bft-labs/insitu/internal/domain"
	"github.com/bft-labs/insitu/internal/ports"
)

type fakeBundler struct {
	calls []ports.BundleArgs
	seen  []bool
	err   error
}

func (b *fakeBundler) Bundle(ctx context.Context, args ports.BundleArgs) error {
	b.calls = append(b.calls, args)
	for _, m := range args.Manifests {
		_, err := os.Stat(m.Path)
		b.seen = append(b.seen, err == nil)
	}
	return b.err
}

func experimentFixture() (*memory.Store, *memStorage) {
	store := memory.NewStore()
	storage := &memStorage{files: map[string]string{}}
	for _, round := range []string{"R1", "R2"} {
		for _, ch := range []string{"Cy3", "Cy5", "DAPI"} {
			f := testFrame(round, 0, ch, 0)
			store.Add(f)
			storage.files[f.Path()] = round + ch
		}
	}
	return store, storage
}

func experimentRequest(dir string) ExperimentRequest {
	return ExperimentRequest{
		OutputDir:      dir,
		Rounds:         []string{"R1", "R2"},
		Positions:      []int{0},
		MetadataFormat: domain.FormatMicroManager,
		ZSlices:        domain.AllSlices(),
		SpotChannels:   []string{"Cy3", "Cy5"},
		NucleiChannels: []string{"DAPI"},
		StoragePrefix:  "/Volumes/imaging/",
	}
}

func TestExperimentWriter_Write(t *testing.T) {
	store, storage := experimentFixture()
	bundler := &fakeBundler{}
	logger := &recordingLogger{}
	w := NewExperimentWriter(store, NewChecksumPass(storage, 2), ChecksumContent, bundler, logger)

	dir := t.TempDir()
	res, err := w.Write(context.Background(), experimentRequest(dir))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := uuid.Parse(res.RunID); err != nil {
		t.Errorf("run id %q: %v", res.RunID, err)
	}
	if !res.Bundled || len(res.Manifests) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Manifests[0].Rows != 4 || res.Manifests[1].Rows != 2 {
		t.Errorf("rows = %d, %d, want 4, 2", res.Manifests[0].Rows, res.Manifests[1].Rows)
	}

	want := ports.BundleArgs{
		TileWidth:     2048,
		TileHeight:    2048,
		StoragePrefix: "/Volumes/imaging/",
		OutputDir:     dir,
		Manifests: []ports.NamedManifest{
			{Name: ManifestPrimary, Path: filepath.Join(dir, "spots.csv")},
			{Name: ManifestNuclei, Path: filepath.Join(dir, "nuclei.csv")},
		},
	}
	if len(bundler.calls) != 1 {
		t.Fatalf("bundler calls = %d, want 1", len(bundler.calls))
	}
	if diff := cmp.Diff(want, bundler.calls[0]); diff != "" {
		t.Errorf("bundle args (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]bool{true, true}, bundler.seen); diff != "" {
		t.Errorf("manifests present at bundle time (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(dir, "stain.csv")); !os.IsNotExist(err) {
		t.Error("stain.csv written without stain channels")
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()
	for _, line := range logger.lines {
		if len(line.fields) == 0 || line.fields[0].Key != "run_id" || line.fields[0].Value != res.RunID {
			t.Errorf("log line %q lacks run id", line.msg)
		}
	}
}

func TestExperimentWriter_SkipBundle(t *testing.T) {
	store, storage := experimentFixture()
	w := NewExperimentWriter(store, NewChecksumPass(storage, 1), ChecksumContent, nil, &recordingLogger{})

	req := experimentRequest(t.TempDir())
	req.SkipBundle = true
	res, err := w.Write(context.Background(), req)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if res.Bundled {
		t.Error("bundled despite SkipBundle")
	}
	for _, m := range res.Manifests {
		if _, err := os.Stat(m.Path); err != nil {
			t.Errorf("manifest %s: %v", m.Path, err)
		}
	}
}

func TestExperimentWriter_FailedManifestSkipsBundle(t *testing.T) {
	store, storage := experimentFixture()
	bundler := &fakeBundler{}
	w := NewExperimentWriter(store, NewChecksumPass(storage, 1), ChecksumContent, bundler, &recordingLogger{})

	req := experimentRequest(t.TempDir())
	req.NucleiChannels = []string{"FITC"}
	if _, err := w.Write(context.Background(), req); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if len(bundler.calls) != 0 {
		t.Error("bundler ran after a manifest failed")
	}
}

func TestExperimentWriter_BundleError(t *testing.T) {
	store, storage := experimentFixture()
	bundler := &fakeBundler{err: domain.ErrBundle}
	w := NewExperimentWriter(store, NewChecksumPass(storage, 1), ChecksumContent, bundler, &recordingLogger{})

	res, err := w.Write(context.Background(), experimentRequest(t.TempDir()))
	if !errors.Is(err, domain.ErrBundle) {
		t.Fatalf("error = %v, want ErrBundle", err)
	}
	if res.Bundled || len(res.Manifests) != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestExperimentWriter_Validation(t *testing.T) {
	store, storage := experimentFixture()
	w := NewExperimentWriter(store, NewChecksumPass(storage, 1), ChecksumContent, nil, &recordingLogger{})

	req := experimentRequest(t.TempDir())
	if _, err := w.Write(context.Background(), req); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("missing bundler: error = %v, want ErrConfiguration", err)
	}
	req.SkipBundle = true
	req.SpotChannels = nil
	if _, err := w.Write(context.Background(), req); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("missing spot channels: error = %v, want ErrConfiguration", err)
	}
	if store.SessionsOpened() != 0 {
		t.Errorf("store touched by invalid requests")
	}
}
