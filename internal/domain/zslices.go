package domain

import "fmt"

type zSelectionKind int

const (
	zAll zSelectionKind = iota
	zFlat
	zPerRound
)

// ZSelection chooses which z-slices are taken from each round and in which
// order. The zero value selects all slices and keeps their native indices.
type ZSelection struct {
	kind     zSelectionKind
	flat     []int
	perRound [][]int
}

// AllSlices selects every slice with its native index.
func AllSlices() ZSelection {
	return ZSelection{}
}

// FlatSlices applies the same ordered slice list to every round.
func FlatSlices(slices []int) ZSelection {
	return ZSelection{kind: zFlat, flat: append(make([]int, 0, len(slices)), slices...)}
}

// PerRoundSlices applies one ordered slice list per round.
func PerRoundSlices(slices [][]int) ZSelection {
	cp := make([][]int, len(slices))
	for i, s := range slices {
		cp[i] = append(make([]int, 0, len(s)), s...)
	}
	return ZSelection{kind: zPerRound, perRound: cp}
}

// IsAll reports whether the selection keeps every slice.
func (z ZSelection) IsAll() bool {
	return z.kind == zAll
}

// Validate checks the selection against the number of rounds.
func (z ZSelection) Validate(nRounds int) error {
	switch z.kind {
	case zAll:
		return nil
	case zFlat:
		return validateSliceList(z.flat, -1)
	case zPerRound:
		if len(z.perRound) != nRounds {
			return fmt.Errorf("%w: z-slice selection has %d round lists, want %d",
				ErrConfiguration, len(z.perRound), nRounds)
		}
		for r, s := range z.perRound {
			if err := validateSliceList(s, r); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: unknown z-slice selection", ErrConfiguration)
}

func validateSliceList(slices []int, round int) error {
	where := "z-slice selection"
	if round >= 0 {
		where = fmt.Sprintf("z-slice selection for round %d", round)
	}
	seen := make(map[int]struct{}, len(slices))
	for _, s := range slices {
		if s < 0 {
			return fmt.Errorf("%w: %s has negative slice %d", ErrConfiguration, where, s)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("%w: %s repeats slice %d", ErrConfiguration, where, s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// For returns the ordered slice list of a round, or nil for an all-slices
// selection. The caller must have validated the selection.
func (z ZSelection) For(round int) []int {
	switch z.kind {
	case zFlat:
		return z.flat
	case zPerRound:
		return z.perRound[round]
	}
	return nil
}

// String renders the selection for logs.
func (z ZSelection) String() string {
	switch z.kind {
	case zFlat:
		return fmt.Sprintf("%v", z.flat)
	case zPerRound:
		return fmt.Sprintf("%v", z.perRound)
	}
	return "all"
}
