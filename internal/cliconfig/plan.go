package cliconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/insitu/internal/domain"
)

// Plan describes one experiment: the datasets imaged in each round and the
// channels making up each manifest. Unset acquisition fields fall back to
// the CLI configuration.
type Plan struct {
	ImageIDs       []string `toml:"image_ids"`
	SpotChannels   []string `toml:"spot_channels"`
	StainChannels  []string `toml:"stain_channels"`
	NucChannels    []string `toml:"nuc_channels"`
	Positions      []int    `toml:"positions"`
	Time           *int     `toml:"time"`
	MetadataFormat string   `toml:"metadata_format"`
	OutputDir      string   `toml:"output_dir"`

	// ZSlices is either a flat list applied to every round or one list per
	// round. Absent means every slice.
	ZSlices any `toml:"z_slices"`
}

// LoadPlan reads and validates the plan file at path.
func LoadPlan(path string) (Plan, error) {
	var p Plan
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("%w: read plan: %w", domain.ErrIO, err)
	}
	if err := toml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("%w: parse plan %s: %w", domain.ErrConfiguration, path, err)
	}
	if len(p.ImageIDs) == 0 {
		return p, fmt.Errorf("%w: plan %s lists no image_ids", domain.ErrConfiguration, path)
	}
	if len(p.SpotChannels) == 0 {
		return p, fmt.Errorf("%w: plan %s lists no spot_channels", domain.ErrConfiguration, path)
	}
	sel, err := p.ZSelection()
	if err != nil {
		return p, err
	}
	if err := sel.Validate(len(p.ImageIDs)); err != nil {
		return p, err
	}
	return p, nil
}

// Merge fills the acquisition settings the plan leaves unset from cfg.
func (p Plan) Merge(cfg Config) Plan {
	if len(p.Positions) == 0 {
		p.Positions = append([]int(nil), cfg.Positions...)
	}
	if p.Time == nil {
		t := cfg.Time
		p.Time = &t
	}
	if p.MetadataFormat == "" {
		p.MetadataFormat = cfg.MetadataFormat
	}
	if p.OutputDir == "" {
		p.OutputDir = cfg.OutputDir
	}
	return p
}

// ZSelection decodes the z_slices entry.
func (p Plan) ZSelection() (domain.ZSelection, error) {
	return ParseZSlices(p.ZSlices)
}

// ParseZSlices interprets a decoded z_slices value: nil selects every slice,
// a list of integers is a flat selection and a list of lists selects per
// round.
func ParseZSlices(v any) (domain.ZSelection, error) {
	if v == nil {
		return domain.AllSlices(), nil
	}
	items, ok := v.([]any)
	if !ok {
		return domain.ZSelection{}, fmt.Errorf("%w: z_slices must be a list, got %T", domain.ErrConfiguration, v)
	}
	if len(items) == 0 {
		return domain.FlatSlices(nil), nil
	}

	if _, nested := items[0].([]any); !nested {
		flat, err := toInts(items)
		if err != nil {
			return domain.ZSelection{}, err
		}
		return domain.FlatSlices(flat), nil
	}

	perRound := make([][]int, len(items))
	for i, item := range items {
		inner, ok := item.([]any)
		if !ok {
			return domain.ZSelection{}, fmt.Errorf("%w: z_slices mixes lists and numbers at %d", domain.ErrConfiguration, i)
		}
		ints, err := toInts(inner)
		if err != nil {
			return domain.ZSelection{}, fmt.Errorf("round %d: %w", i, err)
		}
		perRound[i] = ints
	}
	return domain.PerRoundSlices(perRound), nil
}

func toInts(items []any) ([]int, error) {
	out := make([]int, len(items))
	for i, item := range items {
		switch n := item.(type) {
		case int64:
			out[i] = int(n)
		case int:
			out[i] = n
		default:
			return nil, fmt.Errorf("%w: z slice %v is not an integer", domain.ErrConfiguration, item)
		}
	}
	return out, nil
}

// ParseZSlicesFlag parses the command-line form of a slice selection: empty
// selects every slice, "0,1" is flat and "0,1;2,3" gives one list per round.
func ParseZSlicesFlag(s string) (domain.ZSelection, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.AllSlices(), nil
	}
	rounds := strings.Split(s, ";")
	lists := make([][]int, len(rounds))
	for i, r := range rounds {
		for _, f := range strings.Split(r, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			z, err := strconv.Atoi(f)
			if err != nil {
				return domain.ZSelection{}, fmt.Errorf("%w: z slice %q is not an integer", domain.ErrConfiguration, f)
			}
			lists[i] = append(lists[i], z)
		}
	}
	if len(lists) == 1 {
		return domain.FlatSlices(lists[0]), nil
	}
	return domain.PerRoundSlices(lists), nil
}
