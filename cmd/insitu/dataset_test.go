package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/bft-labs/insitu/internal/domain"
)

const datasetYAML = `
dataset_serial: ISP-2019-08-28-14-30-00-0001
description: round one
microscope: spinning disk
s3_dir: raw_frames/ISP-2019-08-28-14-30-00-0001
im_width: 64
im_height: 32
im_colors: 1
bit_depth: uint16
frames:
  - {channel_idx: 1, channel_name: Cy5, slice_idx: 0, pos_idx: 0, file_name: im_p000_z000.png,
     metadata: {MicroManagerMetadata: {PixelSizeUm: 0.5, XPositionUm: 10, YPositionUm: 20, ZPositionUm: 1.5}}}
  - {channel_idx: 1, channel_name: Cy5, slice_idx: 1, pos_idx: 0, file_name: im_p000_z001.png,
     metadata: {MicroManagerMetadata: {PixelSizeUm: 0.5, XPositionUm: 10, YPositionUm: 20, ZPositionUm: 2.5}}}
  - {channel_idx: 0, channel_name: DAPI, slice_idx: 0, pos_idx: 1, file_name: im_p001_z000.png, sha256: abc,
     metadata: {MicroManagerMetadata: {PixelSizeUm: 0.5, XPositionUm: 30, YPositionUm: 20, ZPositionUm: 1.5}}}
`

func TestDecodeDataset(t *testing.T) {
	ds, err := decodeDataset(strings.NewReader(datasetYAML))
	if err != nil {
		t.Fatalf("decodeDataset: %v", err)
	}
	if ds.Serial != "ISP-2019-08-28-14-30-00-0001" || ds.Microscope != "spinning disk" {
		t.Errorf("dataset = %+v", ds)
	}
	g := ds.Global
	if g.Width != 64 || g.Height != 32 || g.BitDepth != "uint16" {
		t.Errorf("global = %+v", g)
	}
	if g.NbrPositions != 2 || g.NbrChannels != 2 || g.NbrSlices != 2 || g.NbrTimepoints != 1 {
		t.Errorf("counts = %d positions, %d channels, %d slices, %d timepoints",
			g.NbrPositions, g.NbrChannels, g.NbrSlices, g.NbrTimepoints)
	}
	if len(ds.Frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(ds.Frames))
	}
	f := ds.Frames[1]
	if f.DatasetSerial != ds.Serial || f.SliceIdx != 1 || f.ChannelName != "Cy5" {
		t.Errorf("frame = %+v", f)
	}
	keys, _ := domain.LookupMetadataKeys(domain.FormatMicroManager)
	pos, err := keys.Extract(f.Metadata)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if pos.Z != 2.5 || pos.X != 10 {
		t.Errorf("stage = %+v", pos)
	}
	if ds.Frames[2].SHA256 != "abc" {
		t.Errorf("sha256 = %q", ds.Frames[2].SHA256)
	}
}

func TestDecodeDataset_JSON(t *testing.T) {
	ds, err := decodeDataset(strings.NewReader(`{"dataset_serial": "ISP-1", "im_width": 8, "im_height": 8, "frames": []}`))
	if err != nil {
		t.Fatalf("decodeDataset: %v", err)
	}
	if ds.Serial != "ISP-1" || ds.Global.Width != 8 || len(ds.Frames) != 0 {
		t.Errorf("dataset = %+v", ds)
	}
}

func TestDecodeDataset_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing serial", "im_width: 8\n"},
		{"not a mapping", "- a\n- b\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeDataset(strings.NewReader(tt.input))
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}
