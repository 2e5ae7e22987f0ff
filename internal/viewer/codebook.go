package viewer

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/bft-labs/insitu/internal/domain"
)

// CodeEntry is one nonzero cell of a codeword.
type CodeEntry struct {
	Round   int     `yaml:"r"`
	Channel int     `yaml:"c"`
	Value   float64 `yaml:"v"`
}

// Mapping assigns a codeword to a target.
type Mapping struct {
	Codeword []CodeEntry `yaml:"codeword"`
	Target   string      `yaml:"target"`
}

// Codebook is a SpaceTx codebook.
type Codebook struct {
	Version  string    `yaml:"version"`
	Mappings []Mapping `yaml:"mappings"`
}

// LoadCodebook parses a codebook in JSON or YAML form.
func LoadCodebook(r io.Reader) (*Codebook, error) {
	var cb Codebook
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cb); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: codebook is empty", domain.ErrConfiguration)
		}
		return nil, fmt.Errorf("%w: parse codebook: %w", domain.ErrConfiguration, err)
	}
	if len(cb.Mappings) == 0 {
		return nil, fmt.Errorf("%w: codebook has no mappings", domain.ErrConfiguration)
	}
	return &cb, nil
}

// LoadCodebookFile opens and parses the codebook at path.
func LoadCodebookFile(path string) (*Codebook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open codebook: %w", domain.ErrIO, err)
	}
	defer f.Close()
	return LoadCodebook(f)
}

// TargetChannel is the channel a target was imaged in.
type TargetChannel struct {
	Target  string
	Channel int
}

// TargetChannels returns, in codebook order, the channel of every target.
// Each target must be coded by exactly one nonzero channel.
func (cb *Codebook) TargetChannels() ([]TargetChannel, error) {
	out := make([]TargetChannel, 0, len(cb.Mappings))
	for _, m := range cb.Mappings {
		channels := map[int]struct{}{}
		for _, e := range m.Codeword {
			if e.Value != 0 {
				channels[e.Channel] = struct{}{}
			}
		}
		switch len(channels) {
		case 1:
			for c := range channels {
				out = append(out, TargetChannel{Target: m.Target, Channel: c})
			}
		case 0:
			return nil, fmt.Errorf("%w: target %q has no nonzero code", domain.ErrConfiguration, m.Target)
		default:
			cs := make([]int, 0, len(channels))
			for c := range channels {
				cs = append(cs, c)
			}
			sort.Ints(cs)
			return nil, fmt.Errorf("%w: target %q is coded in several channels %v", domain.ErrConfiguration, m.Target, cs)
		}
	}
	return out, nil
}
