package viewer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Key bindings of the session.
const (
	KeyNext = "."
	KeyPrev = ","
	KeyQuit = "q"
)

// layerColors cycle over the spot layers, one per target.
var layerColors = []string{"white", "green", "magenta", "cyan", "yellow", "black", "blue"}

// Layer is the spot overlay of one target.
type Layer struct {
	Target  string
	Channel int
	Color   string
}

// Layers returns one overlay per target, colors cycling in codebook order.
func Layers(targets []TargetChannel) []Layer {
	out := make([]Layer, len(targets))
	for i, t := range targets {
		out[i] = Layer{Target: t.Target, Channel: t.Channel, Color: layerColors[i%len(layerColors)]}
	}
	return out
}

// Session shows one field of view at a time and reads navigation keys, one
// per line, from its input.
type Session struct {
	entries []FOVEntry
	layers  []Layer
	pager   *Pager
	in      io.Reader
	out     io.Writer

	// Stat reports whether a result file exists. Defaults to os.Stat.
	Stat func(path string) error
}

// NewSession creates a session over entries with the codebook's targets.
func NewSession(entries []FOVEntry, cb *Codebook, in io.Reader, out io.Writer) (*Session, error) {
	targets, err := cb.TargetChannels()
	if err != nil {
		return nil, err
	}
	return &Session{
		entries: entries,
		layers:  Layers(targets),
		pager:   NewPager(len(entries)),
		in:      in,
		out:     out,
		Stat: func(path string) error {
			_, err := os.Stat(path)
			return err
		},
	}, nil
}

// Current returns the entry on display.
func (s *Session) Current() FOVEntry {
	return s.entries[s.pager.Index()]
}

// Run displays the first field of view and handles keys until the input ends,
// the quit key is read or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	if len(s.entries) == 0 {
		return nil
	}
	if err := s.show(); err != nil {
		return err
	}

	sc := bufio.NewScanner(s.in)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch strings.TrimSpace(sc.Text()) {
		case KeyNext:
			s.pager.Next()
		case KeyPrev:
			s.pager.Prev()
		case KeyQuit:
			return nil
		case "":
			continue
		default:
			fmt.Fprintf(s.out, "keys: %s next, %s previous, %s quit\n", KeyNext, KeyPrev, KeyQuit)
			continue
		}
		if err := s.show(); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (s *Session) show() error {
	e := s.Current()
	var b strings.Builder
	fmt.Fprintf(&b, "[%d/%d] %s\n", s.pager.Index()+1, s.pager.Len(), e.Name)
	fmt.Fprintf(&b, "  spots: %s%s\n", e.SpotFile, s.missing(e.SpotFile))
	fmt.Fprintf(&b, "  mask:  %s%s\n", e.MaskFile, s.missing(e.MaskFile))
	for _, l := range s.layers {
		fmt.Fprintf(&b, "  %-16s ch %d  %s\n", l.Target, l.Channel, l.Color)
	}
	_, err := io.WriteString(s.out, b.String())
	return err
}

func (s *Session) missing(path string) string {
	if s.Stat == nil || s.Stat(path) == nil {
		return ""
	}
	return " (missing)"
}
