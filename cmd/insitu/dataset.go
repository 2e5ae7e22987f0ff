package main

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/bft-labs/insitu/internal/adapters/sqlite"
	"github.com/bft-labs/insitu/internal/domain"
)

// datasetFile is the on-disk description of one acquisition, as exported by
// the microscope upload tooling.
type datasetFile struct {
	Serial      string         `yaml:"dataset_serial"`
	Description string         `yaml:"description"`
	Microscope  string         `yaml:"microscope"`
	StorageDir  string         `yaml:"s3_dir"`
	Width       int            `yaml:"im_width"`
	Height      int            `yaml:"im_height"`
	Colors      int            `yaml:"im_colors"`
	BitDepth    string         `yaml:"bit_depth"`
	Metadata    map[string]any `yaml:"metadata"`
	Frames      []frameFile    `yaml:"frames"`
}

type frameFile struct {
	ChannelIdx  int            `yaml:"channel_idx"`
	ChannelName string         `yaml:"channel_name"`
	SliceIdx    int            `yaml:"slice_idx"`
	TimeIdx     int            `yaml:"time_idx"`
	PosIdx      int            `yaml:"pos_idx"`
	FileName    string         `yaml:"file_name"`
	SHA256      string         `yaml:"sha256"`
	Metadata    map[string]any `yaml:"metadata"`
}

func decodeDataset(r io.Reader) (sqlite.Dataset, error) {
	var df datasetFile
	if err := yaml.NewDecoder(r).Decode(&df); err != nil {
		return sqlite.Dataset{}, fmt.Errorf("%w: decode dataset: %w", domain.ErrConfiguration, err)
	}
	if df.Serial == "" {
		return sqlite.Dataset{}, fmt.Errorf("%w: dataset_serial is required", domain.ErrConfiguration)
	}

	ds := sqlite.Dataset{
		Serial:      df.Serial,
		Description: df.Description,
		Microscope:  df.Microscope,
		Global: domain.FrameGlobal{
			StorageDir: df.StorageDir,
			Width:      df.Width,
			Height:     df.Height,
			Colors:     df.Colors,
			BitDepth:   df.BitDepth,
			Metadata:   df.Metadata,
		},
	}

	positions := map[int]struct{}{}
	channels := map[int]struct{}{}
	slices := map[int]struct{}{}
	times := map[int]struct{}{}
	for _, f := range df.Frames {
		ds.Frames = append(ds.Frames, domain.Frame{
			DatasetSerial: df.Serial,
			PosIdx:        f.PosIdx,
			ChannelIdx:    f.ChannelIdx,
			ChannelName:   f.ChannelName,
			SliceIdx:      f.SliceIdx,
			TimeIdx:       f.TimeIdx,
			FileName:      f.FileName,
			SHA256:        f.SHA256,
			Metadata:      f.Metadata,
		})
		positions[f.PosIdx] = struct{}{}
		channels[f.ChannelIdx] = struct{}{}
		slices[f.SliceIdx] = struct{}{}
		times[f.TimeIdx] = struct{}{}
	}
	ds.Global.NbrPositions = len(positions)
	ds.Global.NbrChannels = len(channels)
	ds.Global.NbrSlices = len(slices)
	ds.Global.NbrTimepoints = len(times)
	return ds, nil
}
