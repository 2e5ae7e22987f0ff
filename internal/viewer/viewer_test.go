package viewer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bft-labs/insitu/internal/domain"
)

const fovCSV = `,fov_name,spot_file,mask_file,area
0,fov_000,spots/fov_000.nc,masks/fov_000.tif,12
1,fov_001,spots/fov_001.nc,masks/fov_001.tif,15
2,fov_002,spots/fov_002.nc,masks/fov_002.tif,9
`

func TestLoadFOVTable(t *testing.T) {
	got, err := LoadFOVTable(strings.NewReader(fovCSV))
	if err != nil {
		t.Fatalf("LoadFOVTable: %v", err)
	}
	want := []FOVEntry{
		{"fov_000", "spots/fov_000.nc", "masks/fov_000.tif"},
		{"fov_001", "spots/fov_001.nc", "masks/fov_001.tif"},
		{"fov_002", "spots/fov_002.nc", "masks/fov_002.tif"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entries (-want +got):\n%s", diff)
	}
}

func TestLoadFOVTable_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"missing column": "fov_name,spot_file\nfov_000,a.nc\n",
		"no rows":        "fov_name,spot_file,mask_file\n",
		"short row":      "fov_name,spot_file,mask_file\nfov_000,a.nc\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFOVTable(strings.NewReader(in)); !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("error = %v, want ErrConfiguration", err)
			}
		})
	}
}

const codebookJSON = `{
  "version": "0.0.0",
  "mappings": [
    {"codeword": [{"r": 0, "c": 1, "v": 1}], "target": "ACTB"},
    {"codeword": [{"r": 0, "c": 0, "v": 1}, {"r": 0, "c": 2, "v": 0}], "target": "GAPDH"}
  ]
}`

const codebookYAML = `
version: 0.0.0
mappings:
  - target: ACTB
    codeword:
      - {r: 0, c: 1, v: 1}
  - target: GAPDH
    codeword:
      - {r: 0, c: 0, v: 1}
`

func TestCodebook_TargetChannels(t *testing.T) {
	want := []TargetChannel{{"ACTB", 1}, {"GAPDH", 0}}
	for name, in := range map[string]string{"json": codebookJSON, "yaml": codebookYAML} {
		t.Run(name, func(t *testing.T) {
			cb, err := LoadCodebook(strings.NewReader(in))
			if err != nil {
				t.Fatalf("LoadCodebook: %v", err)
			}
			got, err := cb.TargetChannels()
			if err != nil {
				t.Fatalf("TargetChannels: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("targets (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCodebook_TargetChannelsErrors(t *testing.T) {
	multi := &Codebook{Mappings: []Mapping{{Target: "X", Codeword: []CodeEntry{{0, 0, 1}, {1, 2, 1}}}}}
	if _, err := multi.TargetChannels(); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("multi-channel error = %v, want ErrConfiguration", err)
	}
	zero := &Codebook{Mappings: []Mapping{{Target: "X", Codeword: []CodeEntry{{0, 0, 0}}}}}
	if _, err := zero.TargetChannels(); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("zero code error = %v, want ErrConfiguration", err)
	}
	if _, err := LoadCodebook(strings.NewReader("")); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("empty codebook error = %v, want ErrConfiguration", err)
	}
}

func TestPager(t *testing.T) {
	p := NewPager(3)
	var got []int
	for _, step := range []string{"next", "next", "next", "prev", "prev", "prev", "prev"} {
		if step == "next" {
			got = append(got, p.Next())
		} else {
			got = append(got, p.Prev())
		}
	}
	if diff := cmp.Diff([]int{1, 2, 0, 2, 1, 0, 2}, got); diff != "" {
		t.Errorf("pages (-want +got):\n%s", diff)
	}
	if NewPager(0).Next() != 0 {
		t.Error("empty pager moved")
	}
}

func TestLayers(t *testing.T) {
	targets := make([]TargetChannel, 8)
	layers := Layers(targets)
	if layers[0].Color != "white" || layers[7].Color != "white" || layers[6].Color != "blue" {
		t.Errorf("colors = %+v", layers)
	}
}

func TestSession_Run(t *testing.T) {
	entries, _ := LoadFOVTable(strings.NewReader(fovCSV))
	cb, _ := LoadCodebook(strings.NewReader(codebookJSON))

	var out bytes.Buffer
	s, err := NewSession(entries, cb, strings.NewReader(",\n.\n.\nhelp\nq\n.\n"), &out)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.Stat = func(path string) error {
		if path == "masks/fov_002.tif" {
			return os.ErrNotExist
		}
		return nil
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var shown []string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(line, "[") {
			shown = append(shown, line)
		}
	}
	want := []string{"[1/3] fov_000", "[3/3] fov_002", "[1/3] fov_000", "[2/3] fov_001"}
	if diff := cmp.Diff(want, shown); diff != "" {
		t.Errorf("pages shown (-want +got):\n%s", diff)
	}
	if s.Current().Name != "fov_001" {
		t.Errorf("current = %s, want fov_001 after quit", s.Current().Name)
	}
	if !strings.Contains(out.String(), "masks/fov_002.tif (missing)") {
		t.Error("missing mask not flagged")
	}
	if !strings.Contains(out.String(), "keys:") {
		t.Error("unknown key did not print help")
	}
	if !strings.Contains(out.String(), "ACTB") || !strings.Contains(out.String(), "ch 1") {
		t.Errorf("layers not shown:\n%s", out.String())
	}
}
