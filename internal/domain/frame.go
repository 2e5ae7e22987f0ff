package domain

import (
	"fmt"
	"path"
	"strings"
)

// Frame is a single 2D image plane as recorded by the imaging database.
// Frames are owned by the record store; insitu only reads them.
type Frame struct {
	// DatasetSerial identifies the acquisition (one round in a manifest)
	DatasetSerial string

	// PosIdx is the stage position (field of view) index
	PosIdx int

	// ChannelIdx is the database channel index
	ChannelIdx int

	// ChannelName is the channel label, e.g. "Cy5" or "DAPI"
	ChannelName string

	// SliceIdx is the native z-slice index of the plane
	SliceIdx int

	// TimeIdx is the time point index
	TimeIdx int

	// FileName is the tile's file name inside Global.StorageDir
	FileName string

	// SHA256 is the digest recorded by the database at upload time
	SHA256 string

	// Metadata is the per-frame acquisition metadata (metadata_json)
	Metadata map[string]any

	// Global holds dataset-wide frame properties
	Global FrameGlobal
}

// FrameGlobal holds the properties shared by every frame of a dataset.
type FrameGlobal struct {
	StorageDir    string
	Width         int
	Height        int
	Colors        int
	BitDepth      string
	NbrPositions  int
	NbrChannels   int
	NbrSlices     int
	NbrTimepoints int
	Metadata      map[string]any
}

// Path returns the frame's storage path with forward-slash separators.
func (f Frame) Path() string {
	return NormalizePath(f.Global.StorageDir, f.FileName)
}

// NormalizePath joins a storage directory and a file name, rewriting any
// backslash separators to forward slashes first. Paths written with either
// separator style normalize to the same result.
func NormalizePath(dir, file string) string {
	dir = strings.ReplaceAll(dir, `\`, "/")
	file = strings.ReplaceAll(file, `\`, "/")
	if dir == "" {
		return path.Clean(file)
	}
	return path.Join(dir, file)
}

// FrameQuery selects frames from the record store.
type FrameQuery struct {
	Dataset  string
	Position int
	Channel  string
	Time     int

	// Slices restricts the result to these slice indices. Nil means no filter.
	Slices []int
}

// String renders the query for error messages and logs.
func (q FrameQuery) String() string {
	s := fmt.Sprintf("dataset=%s pos=%d channel=%s time=%d", q.Dataset, q.Position, q.Channel, q.Time)
	if q.Slices != nil {
		s += fmt.Sprintf(" slices=%v", q.Slices)
	}
	return s
}
