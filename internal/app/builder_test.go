package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bft-labs/insitu/internal/adapters/memory"
	"github.com/bft-labs/insitu/internal/domain"
)

func request(rounds []string, positions []int, channels []string, sel domain.ZSelection) BuildRequest {
	return BuildRequest{
		Rounds:         rounds,
		Positions:      positions,
		Channels:       channels,
		MetadataFormat: domain.FormatMicroManager,
		ZSlices:        sel,
	}
}

type coord struct{ FOV, Round, Channel, ZPlane int }

func coords(rows []domain.ManifestRow) []coord {
	out := make([]coord, len(rows))
	for i, r := range rows {
		out[i] = coord{r.FOV, r.Round, r.Channel, r.ZPlane}
	}
	return out
}

func TestBuild_NativeSliceOrder(t *testing.T) {
	store := memory.NewStore(
		testFrame("R1", 0, "Cy5", 2),
		testFrame("R1", 0, "Cy5", 0),
		testFrame("R1", 0, "Cy5", 1),
	)
	b := NewBuilder(store, &recordingLogger{})

	res, err := b.Build(context.Background(), request([]string{"R1"}, []int{0}, []string{"Cy5"}, domain.AllSlices()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []coord{{0, 0, 0, 2}, {0, 0, 0, 0}, {0, 0, 0, 1}}
	if diff := cmp.Diff(want, coords(res.Rows)); diff != "" {
		t.Errorf("coords mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{3}, res.RoundMatches); diff != "" {
		t.Errorf("round matches (-want +got):\n%s", diff)
	}
	if q := store.Queries(); len(q) != 1 || q[0].Slices != nil {
		t.Errorf("queries = %+v, want one unfiltered query", q)
	}
	if store.OpenSessions() != 0 || store.SessionsOpened() != 1 {
		t.Errorf("sessions open=%d opened=%d, want 0 and 1", store.OpenSessions(), store.SessionsOpened())
	}
}

func TestBuild_FlatSelectionAcrossRounds(t *testing.T) {
	store := memory.NewStore()
	for _, r := range []string{"R1", "R2"} {
		for z := 0; z < 4; z++ {
			store.Add(testFrame(r, 0, "Cy3", z))
		}
	}
	b := NewBuilder(store, &recordingLogger{})

	res, err := b.Build(context.Background(), request([]string{"R1", "R2"}, []int{0}, []string{"Cy3"}, domain.FlatSlices([]int{0, 1})))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, q := range store.Queries() {
		if diff := cmp.Diff([]int{0, 1}, q.Slices); diff != "" {
			t.Errorf("query %s slices (-want +got):\n%s", q, diff)
		}
	}
	want := []coord{{0, 0, 0, 0}, {0, 0, 0, 1}, {0, 1, 0, 0}, {0, 1, 0, 1}}
	if diff := cmp.Diff(want, coords(res.Rows)); diff != "" {
		t.Errorf("coords mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_SelectionOrderDefinesZPlane(t *testing.T) {
	store := memory.NewStore(
		testFrame("R1", 0, "Cy5", 1),
		testFrame("R1", 0, "Cy5", 3),
		testFrame("R1", 0, "Cy5", 5),
	)
	b := NewBuilder(store, &recordingLogger{})

	res, err := b.Build(context.Background(), request([]string{"R1"}, []int{0}, []string{"Cy5"}, domain.PerRoundSlices([][]int{{5, 1}})))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(res.Rows))
	}
	if res.Rows[0].ZPlane != 0 || res.Rows[0].ZCMin != 5 {
		t.Errorf("first row = zplane %d z %v, want zplane 0 at slice 5", res.Rows[0].ZPlane, res.Rows[0].ZCMin)
	}
	if res.Rows[1].ZPlane != 1 || res.Rows[1].ZCMin != 1 {
		t.Errorf("second row = zplane %d z %v, want zplane 1 at slice 1", res.Rows[1].ZPlane, res.Rows[1].ZCMin)
	}
}

func TestBuild_IndicesFollowInputPositions(t *testing.T) {
	store := memory.NewStore(
		testFrame("B", 7, "Cy5", 0),
		testFrame("A", 3, "Cy3", 0),
	)
	b := NewBuilder(store, &recordingLogger{})

	res, err := b.Build(context.Background(), request([]string{"A", "B"}, []int{7, 3}, []string{"Cy5", "Cy3"}, domain.AllSlices()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []coord{
		{FOV: 1, Round: 0, Channel: 1, ZPlane: 0},
		{FOV: 0, Round: 1, Channel: 0, ZPlane: 0},
	}
	if diff := cmp.Diff(want, coords(res.Rows)); diff != "" {
		t.Errorf("coords mismatch (-want +got):\n%s", diff)
	}

	got := res.Rows[0]
	if got.Path != "raw_frames/A/im_p003_Cy3_z000.png" {
		t.Errorf("Path = %q", got.Path)
	}
	if got.XCMin != 300 || got.XCMax != 300+2048*0.5 || got.YCMin != -150 || got.YCMax != -150+2048*0.5 {
		t.Errorf("extent = %+v", got)
	}
}

func TestBuild_ValidationHappensBeforeQueries(t *testing.T) {
	tests := []struct {
		name string
		req  BuildRequest
	}{
		{"per round length mismatch", request([]string{"R1", "R2"}, []int{0}, []string{"Cy5"}, domain.PerRoundSlices([][]int{{0}}))},
		{"unknown format", func() BuildRequest {
			r := request([]string{"R1"}, []int{0}, []string{"Cy5"}, domain.AllSlices())
			r.MetadataFormat = "leica"
			return r
		}()},
		{"no rounds", request(nil, []int{0}, []string{"Cy5"}, domain.AllSlices())},
		{"no positions", request([]string{"R1"}, nil, []string{"Cy5"}, domain.AllSlices())},
		{"no channels", request([]string{"R1"}, []int{0}, nil, domain.AllSlices())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore(testFrame("R1", 0, "Cy5", 0))
			_, err := NewBuilder(store, &recordingLogger{}).Build(context.Background(), tt.req)
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("Build error = %v, want ErrConfiguration", err)
			}
			if store.SessionsOpened() != 0 || len(store.Queries()) != 0 {
				t.Errorf("store was touched: sessions=%d queries=%d", store.SessionsOpened(), len(store.Queries()))
			}
		})
	}
}

func TestBuild_EmptyRound(t *testing.T) {
	store := memory.NewStore(testFrame("R1", 0, "Cy5", 0))
	logger := &recordingLogger{}

	req := request([]string{"R1", "R2"}, []int{0}, []string{"Cy5"}, domain.AllSlices())
	res, err := NewBuilder(store, logger).Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if diff := cmp.Diff([]int{1, 0}, res.RoundMatches); diff != "" {
		t.Errorf("round matches (-want +got):\n%s", diff)
	}
	if logger.count("warn") != 1 {
		t.Errorf("warnings = %d, want 1", logger.count("warn"))
	}

	req.Strict = true
	if _, err := NewBuilder(store, logger).Build(context.Background(), req); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("strict Build error = %v, want ErrNotFound", err)
	}
}

func TestBuild_NothingMatches(t *testing.T) {
	store := memory.NewStore(testFrame("R1", 0, "Cy5", 0))
	_, err := NewBuilder(store, &recordingLogger{}).Build(context.Background(),
		request([]string{"R9"}, []int{0}, []string{"Cy5"}, domain.AllSlices()))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Build error = %v, want ErrNotFound", err)
	}
}

func TestBuild_StoreFailureReleasesSession(t *testing.T) {
	store := memory.NewStore(testFrame("R1", 0, "Cy5", 0))
	store.Err = errors.New("connection reset")

	_, err := NewBuilder(store, &recordingLogger{}).Build(context.Background(),
		request([]string{"R1"}, []int{0}, []string{"Cy5"}, domain.AllSlices()))
	if !errors.Is(err, domain.ErrQuery) || !errors.Is(err, store.Err) {
		t.Fatalf("Build error = %v, want ErrQuery wrapping the store error", err)
	}
	if store.OpenSessions() != 0 {
		t.Errorf("open sessions = %d, want 0", store.OpenSessions())
	}
}

func TestBuild_UnreachableStore(t *testing.T) {
	store := unreachableStore{err: errors.New("database is locked")}

	_, err := NewBuilder(store, &recordingLogger{}).Build(context.Background(),
		request([]string{"R1"}, []int{0}, []string{"Cy5"}, domain.AllSlices()))
	if !errors.Is(err, domain.ErrQuery) || !errors.Is(err, store.err) {
		t.Fatalf("Build error = %v, want ErrQuery wrapping the open error", err)
	}
}

func TestBuild_BadMetadata(t *testing.T) {
	f := testFrame("R1", 0, "Cy5", 0)
	f.Metadata = map[string]any{"MicroManagerMetadata": map[string]any{"PixelSizeUm": 0.5}}
	store := memory.NewStore(f)

	_, err := NewBuilder(store, &recordingLogger{}).Build(context.Background(),
		request([]string{"R1"}, []int{0}, []string{"Cy5"}, domain.AllSlices()))
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("Build error = %v, want ErrConfiguration", err)
	}
	if store.OpenSessions() != 0 {
		t.Errorf("open sessions = %d, want 0", store.OpenSessions())
	}
}
