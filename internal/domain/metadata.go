package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MetadataKeys names the metadata fields used to read the pixel size and the
// stage position of a frame for one acquisition-software family.
type MetadataKeys struct {
	// Section is the top-level key of the frame metadata holding the fields
	Section   string
	PixelSize string
	XPos      string
	YPos      string
	ZPos      string
}

// FormatMicroManager is the metadata format of frames acquired with Micro-Manager.
const FormatMicroManager = "micromanager"

var metadataFormats = map[string]MetadataKeys{
	FormatMicroManager: {
		Section:   "MicroManagerMetadata",
		PixelSize: "PixelSizeUm",
		XPos:      "XPositionUm",
		YPos:      "YPositionUm",
		ZPos:      "ZPositionUm",
	},
}

// MetadataFormats returns the registered format names, sorted.
func MetadataFormats() []string {
	names := make([]string, 0, len(metadataFormats))
	for name := range metadataFormats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupMetadataKeys returns the keys bound to a metadata format tag.
// Tags are matched case-insensitively.
func LookupMetadataKeys(format string) (MetadataKeys, error) {
	keys, ok := metadataFormats[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return MetadataKeys{}, fmt.Errorf("%w: unknown metadata format %q (known: %s)",
			ErrConfiguration, format, strings.Join(MetadataFormats(), ", "))
	}
	return keys, nil
}

// StagePosition is the physical placement of a frame read from its metadata.
type StagePosition struct {
	PixelSize float64
	X         float64
	Y         float64
	Z         float64
}

// Extract reads the pixel size and stage position from frame metadata.
func (k MetadataKeys) Extract(meta map[string]any) (StagePosition, error) {
	raw, ok := meta[k.Section]
	if !ok {
		return StagePosition{}, fmt.Errorf("%w: metadata section %q missing", ErrConfiguration, k.Section)
	}
	section, ok := raw.(map[string]any)
	if !ok {
		return StagePosition{}, fmt.Errorf("%w: metadata section %q is %T, want object", ErrConfiguration, k.Section, raw)
	}

	var pos StagePosition
	fields := []struct {
		key string
		dst *float64
	}{
		{k.PixelSize, &pos.PixelSize},
		{k.XPos, &pos.X},
		{k.YPos, &pos.Y},
		{k.ZPos, &pos.Z},
	}
	for _, f := range fields {
		v, ok := section[f.key]
		if !ok {
			return StagePosition{}, fmt.Errorf("%w: metadata field %s.%s missing", ErrConfiguration, k.Section, f.key)
		}
		n, err := toFloat(v)
		if err != nil {
			return StagePosition{}, fmt.Errorf("%w: metadata field %s.%s: %w", ErrConfiguration, k.Section, f.key, err)
		}
		*f.dst = n
	}
	return pos, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}
