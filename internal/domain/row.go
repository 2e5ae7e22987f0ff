package domain

// ManifestRow is one tile of a manifest: its logical coordinate in the
// experiment and its physical bounding box. Rows are built once and never
// mutated after they are appended to a build result, except for SHA256 which
// the checksum pass fills before serialization.
type ManifestRow struct {
	// FOV is the position's index in the requested position list
	FOV int

	// Round is the dataset's index in the requested round list
	Round int

	// Channel is the channel's index in the requested channel list
	Channel int

	// ZPlane is the slice's index in the z-selection, or its native slice index
	ZPlane int

	// Path is the tile's storage path with forward-slash separators
	Path string

	// SHA256 is the hex content digest of the tile
	SHA256 string

	XCMin, XCMax float64
	YCMin, YCMax float64
	ZCMin, ZCMax float64

	TileWidth  int
	TileHeight int
}

// NewManifestRow computes a row's physical extent from the frame's stage
// position and pixel size. The z extent is a single plane at the stage Z.
func NewManifestRow(fov, round, channel, zplane int, f Frame, pos StagePosition) ManifestRow {
	w, h := f.Global.Width, f.Global.Height
	return ManifestRow{
		FOV:        fov,
		Round:      round,
		Channel:    channel,
		ZPlane:     zplane,
		Path:       f.Path(),
		SHA256:     f.SHA256,
		XCMin:      pos.X,
		XCMax:      pos.X + float64(w)*pos.PixelSize,
		YCMin:      pos.Y,
		YCMax:      pos.Y + float64(h)*pos.PixelSize,
		ZCMin:      pos.Z,
		ZCMax:      pos.Z,
		TileWidth:  w,
		TileHeight: h,
	}
}

// TileSize is the uniform tile geometry of a manifest.
type TileSize struct {
	Width  int
	Height int
}

// Paths returns the storage path of every row, in row order.
func Paths(rows []ManifestRow) []string {
	paths := make([]string, len(rows))
	for i, r := range rows {
		paths[i] = r.Path
	}
	return paths
}
