package store_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/jacentio/canopy/memory"
	"github.com/jacentio/canopy/store"
)

func names(t *testing.T, cur *store.Cursor[User, *User]) []string {
	t.Helper()
	list, err := cur.ToList(context.Background())
	if err != nil {
		t.Fatalf("to list: %v", err)
	}
	out := make([]string, len(list))
	for i, u := range list {
		out[i] = u.Name
	}
	return out
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFind_Equality(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t, newDB(t))
	saveUsers(t, users, "James Doe", "Jane Doe", "James Doe", "John Roe")

	cur, err := users.Find(ctx, store.FindOptions{Filter: store.Filter{"name": "James Doe"}})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	got := names(t, cur)
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %v", got)
	}
	for _, n := range got {
		if n != "James Doe" {
			t.Errorf("unexpected match %q", n)
		}
	}
}

func TestFind_Operators(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t, newDB(t))
	// Ages 20..24
	saveUsers(t, users, "a", "b", "c", "d", "e")

	tests := []struct {
		name   string
		filter store.Filter
		want   []string
	}{
		{"greater than", store.Filter{"age": store.Ops{store.OpGt: 22}}, []string{"d", "e"}},
		{"greater or equal", store.Filter{"age": store.Ops{store.OpGte: 22}}, []string{"c", "d", "e"}},
		{"less than", store.Filter{"age": store.Ops{store.OpLt: 21}}, []string{"a"}},
		{"less or equal", store.Filter{"age": store.Ops{store.OpLte: 21}}, []string{"a", "b"}},
		{"not equal", store.Filter{"name": store.Ops{store.OpNe: "c"}}, []string{"a", "b", "d", "e"}},
		{"range", store.Filter{"age": store.Ops{store.OpGt: 20, store.OpLt: 24}}, []string{"b", "c", "d"}},
		{"explicit equality", store.Filter{"name": store.Ops{store.OpEq: "e"}}, []string{"e"}},
		{"combined fields", store.Filter{"name": store.Ops{store.OpGte: "b"}, "age": store.Ops{store.OpLte: 22}}, []string{"b", "c"}},
		{"string range", store.Filter{"name": store.Ops{store.OpGt: "a", store.OpLt: "d"}}, []string{"b", "c"}},
		{"no match", store.Filter{"age": 99}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur, err := users.Find(ctx, store.FindOptions{Filter: tt.filter, Sort: store.Sort{store.Asc("name")}})
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if got := names(t, cur); !equalNames(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFind_StringKeyedOperators(t *testing.T) {
	users := newUsers(t, newDB(t))
	saveUsers(t, users, "alice", "bob", "cecil")

	cur, err := users.Find(context.Background(), store.FindOptions{
		Filter: store.Filter{"name": map[string]any{"<": "c"}},
		Sort:   store.Sort{store.Asc("name")},
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := names(t, cur); !equalNames(got, []string{"alice", "bob"}) {
		t.Errorf("expected [alice bob], got %v", got)
	}
}

func TestFind_NestedField(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t, newDB(t))

	for _, u := range []*User{
		{Name: "a", Sub: &Sub{Text: "apple"}},
		{Name: "b", Sub: &Sub{Text: "banana"}},
		{Name: "c", Sub: &Sub{Text: "cherry"}},
		{Name: "d"},
	} {
		if err := users.Save(ctx, u); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	cur, err := users.Find(ctx, store.FindOptions{
		Filter: store.Filter{"sub.text": store.Ops{store.OpGt: "b", store.OpLt: "d"}},
		Sort:   store.Sort{store.Asc("name")},
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := names(t, cur); !equalNames(got, []string{"b", "c"}) {
		t.Errorf("expected [b c], got %v", got)
	}

	// A missing attribute sorts before any value
	cur, err = users.Find(ctx, store.FindOptions{Sort: store.Sort{store.Asc("sub.text")}})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := names(t, cur); !equalNames(got, []string{"d", "a", "b", "c"}) {
		t.Errorf("expected [d a b c], got %v", got)
	}
}

func TestFind_NullMatchesMissing(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t, newDB(t))

	if err := users.Save(ctx, &User{Name: "with", Sub: &Sub{Text: "x"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := users.Save(ctx, &User{Name: "without"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	cur, err := users.Find(ctx, store.FindOptions{Filter: store.Filter{"sub": nil}})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := names(t, cur); !equalNames(got, []string{"without"}) {
		t.Errorf("expected [without], got %v", got)
	}
}

func TestFind_SortDescending(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t, newDB(t))
	saveUsers(t, users, "bob", "david", "alice", "cecil")

	cur, err := users.Find(ctx, store.FindOptions{Sort: store.Sort{store.Desc("name")}})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	want := []string{"david", "cecil", "bob", "alice"}
	if got := names(t, cur); !equalNames(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFind_MultiKeySort(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t, newDB(t))

	for _, u := range []*User{
		{Name: "b", Age: 30},
		{Name: "a", Age: 30},
		{Name: "c", Age: 20},
		{Name: "d", Age: 30},
	} {
		if err := users.Save(ctx, u); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	cur, err := users.Find(ctx, store.FindOptions{Sort: store.Sort{store.Asc("age"), store.Desc("name")}})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	want := []string{"c", "d", "b", "a"}
	if got := names(t, cur); !equalNames(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFind_InvalidSort(t *testing.T) {
	users := newUsers(t, newDB(t))

	_, err := users.Find(context.Background(), store.FindOptions{Sort: store.Sort{store.Asc("name desc")}})
	if !errors.Is(err, store.ErrStore) {
		t.Errorf("expected ErrStore, got %v", err)
	}
}

func TestFind_MalformedFilterMatchesNothing(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t, newDB(t))
	saveUsers(t, users, "a", "b")

	filters := []store.Filter{
		{"name == 'a' OR 1": "x"},
		{"na-me": "a"},
		{"sub..text": "a"},
		{"": "a"},
		{"1name": "a"},
		{"name": store.Ops{"LIKE": "a%"}},
	}

	for _, f := range filters {
		cur, err := users.Find(ctx, store.FindOptions{Filter: f, Count: true, FullCount: true})
		if err != nil {
			t.Fatalf("%v: expected no error, got %v", f, err)
		}
		if n, err := cur.Len(); err != nil || n != 0 {
			t.Errorf("%v: expected zero count, got %d, %v", f, n, err)
		}
		if got := names(t, cur); len(got) != 0 {
			t.Errorf("%v: expected no matches, got %v", f, got)
		}

		if _, err := users.FindOne(ctx, store.FindOneOptions{Filter: f}); !errors.Is(err, store.ErrModelNotFound) {
			t.Errorf("%v: expected ErrModelNotFound from FindOne, got %v", f, err)
		}
	}
}

func TestFind_ValuesAreNotParsed(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t, newDB(t))
	odd := "x' || true || '"
	saveUsers(t, users, odd, "plain")

	cur, err := users.Find(ctx, store.FindOptions{Filter: store.Filter{"name": odd}})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := names(t, cur); !equalNames(got, []string{odd}) {
		t.Errorf("expected only the literal match, got %v", got)
	}
}

func TestFind_MissingCollection(t *testing.T) {
	users := store.NewModel[User](newDB(t))

	_, err := users.Find(context.Background(), store.FindOptions{})
	if !errors.Is(err, store.ErrDataSourceNotFound) {
		t.Errorf("expected ErrDataSourceNotFound, got %v", err)
	}
}

func TestFind_LimitAndCounts(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t, newDB(t))
	saveUsers(t, users, "a", "b", "c", "d")

	cur, err := users.Find(ctx, store.FindOptions{
		Sort:      store.Sort{store.Asc("name")},
		Limit:     2,
		Count:     true,
		FullCount: true,
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if n, err := cur.Len(); err != nil || n != 2 {
		t.Errorf("expected Len 2, got %d, %v", n, err)
	}
	if n, err := cur.FullCount(); err != nil || n != 4 {
		t.Errorf("expected FullCount 4, got %d, %v", n, err)
	}
	if got := names(t, cur); !equalNames(got, []string{"a", "b"}) {
		t.Errorf("expected [a b], got %v", got)
	}

	// names drained and closed the cursor
	if _, err := cur.FullCount(); !errors.Is(err, store.ErrCursor) {
		t.Errorf("expected ErrCursor for FullCount after close, got %v", err)
	}
	if _, err := cur.Len(); !errors.Is(err, store.ErrCursor) {
		t.Errorf("expected ErrCursor for Len after close, got %v", err)
	}
}

func TestFind_CountsNotRequested(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t, newDB(t))
	saveUsers(t, users, "a")

	cur, err := users.Find(ctx, store.FindOptions{})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	defer cur.Close(ctx, true)

	_, err = cur.Len()
	if !errors.Is(err, store.ErrCountUnavailable) {
		t.Errorf("expected ErrCountUnavailable, got %v", err)
	}
	if !errors.Is(err, store.ErrCursor) {
		t.Errorf("expected count error to be a cursor error, got %v", err)
	}

	_, err = cur.FullCount()
	if !errors.Is(err, store.ErrCursor) {
		t.Errorf("expected ErrCursor, got %v", err)
	}
	if errors.Is(err, store.ErrCountUnavailable) {
		t.Error("full count error should not be a count error")
	}
}

func TestFindOne(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t, newDB(t))
	saveUsers(t, users, "twin", "twin", "single")

	u, err := users.FindOne(ctx, store.FindOneOptions{Filter: store.Filter{"name": "single"}})
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	if u.Name != "single" {
		t.Errorf("expected 'single', got %q", u.Name)
	}

	if _, err := users.FindOne(ctx, store.FindOneOptions{Filter: store.Filter{"name": "nobody"}}); !errors.Is(err, store.ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got %v", err)
	}

	_, err = users.FindOne(ctx, store.FindOneOptions{Filter: store.Filter{"name": "twin"}, RaiseOnMultiple: true})
	if !errors.Is(err, store.ErrMultipleModelsFound) {
		t.Errorf("expected ErrMultipleModelsFound, got %v", err)
	}

	u, err = users.FindOne(ctx, store.FindOneOptions{Filter: store.Filter{"name": "twin"}})
	if err != nil {
		t.Fatalf("find one without raise: %v", err)
	}
	if u.Name != "twin" {
		t.Errorf("expected 'twin', got %q", u.Name)
	}
}

func TestFindOne_Sort(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t, newDB(t))
	saveUsers(t, users, "a", "c", "b")

	u, err := users.FindOne(ctx, store.FindOneOptions{Sort: store.Sort{store.Desc("name")}})
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	if u.Name != "c" {
		t.Errorf("expected 'c', got %q", u.Name)
	}
}

// --- Cursor ---

func TestCursor_NextAndClose(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t, newDB(t))
	saveUsers(t, users, "a", "b", "c")

	cur, err := users.Find(ctx, store.FindOptions{Sort: store.Sort{store.Asc("name")}, BatchSize: 1})
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	var got []string
	for {
		u, err := cur.Next(ctx)
		if errors.Is(err, store.ErrCursorDone) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		got = append(got, u.Name)
	}
	if !equalNames(got, []string{"a", "b", "c"}) {
		t.Errorf("expected [a b c], got %v", got)
	}

	if ok, err := cur.Close(ctx, false); err != nil || !ok {
		t.Fatalf("close: %v, %v", ok, err)
	}
	if ok, err := cur.Close(ctx, true); err != nil || ok {
		t.Errorf("expected false for a released cursor with ignoreMissing, got %v, %v", ok, err)
	}
	if _, err := cur.Close(ctx, false); !errors.Is(err, store.ErrCursorNotFound) {
		t.Errorf("expected ErrCursorNotFound, got %v", err)
	}
	if _, err := cur.Next(ctx); !errors.Is(err, store.ErrCursor) {
		t.Errorf("expected ErrCursor after close, got %v", err)
	}
}

func TestCursor_All(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t, newDB(t))
	saveUsers(t, users, "a", "b", "c", "d")

	cur, err := users.Find(ctx, store.FindOptions{BatchSize: 3})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	defer cur.Close(ctx, true)

	var got []string
	for u, err := range cur.All(ctx) {
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		got = append(got, u.Name)
		if len(got) == 2 {
			break
		}
	}

	// Iteration resumes where it stopped
	for u, err := range cur.All(ctx) {
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		got = append(got, u.Name)
	}
	sort.Strings(got)
	if !equalNames(got, []string{"a", "b", "c", "d"}) {
		t.Errorf("expected all four users, got %v", got)
	}
}

func TestCursor_EachStopsOnError(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t, newDB(t))
	saveUsers(t, users, "a", "b", "c")

	cur, err := users.Find(ctx, store.FindOptions{})
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	stop := errors.New("stop")
	seen := 0
	err = cur.Each(ctx, func(*User) error {
		seen++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("expected callback error, got %v", err)
	}
	if seen != 1 {
		t.Errorf("expected 1 callback, got %d", seen)
	}

	// Each closed the cursor
	if _, err := cur.Close(ctx, false); !errors.Is(err, store.ErrCursorNotFound) {
		t.Errorf("expected ErrCursorNotFound, got %v", err)
	}
}

// queryRecorder keeps the last query handed to the backend.
type queryRecorder struct {
	store.Backend
	last store.Query
}

func (b *queryRecorder) Query(ctx context.Context, collection string, q store.Query) (store.RawCursor, error) {
	b.last = q
	return b.Backend.Query(ctx, collection, q)
}

func TestFind_BatchSize(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		expected  int
	}{
		{"zero uses config", 0, 25},
		{"negative uses config", -1, 25},
		{"override kept", 500, 500},
		{"max kept", store.MaxBatchSize, store.MaxBatchSize},
		{"over max clamped", 1 << 20, store.MaxBatchSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &queryRecorder{Backend: memory.New()}
			users := newUsers(t, store.New(backend, nil, store.Config{BatchSize: 25}))

			cur, err := users.Find(context.Background(), store.FindOptions{BatchSize: tt.batchSize})
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			defer cur.Close(context.Background(), true)

			if backend.last.BatchSize != tt.expected {
				t.Errorf("expected batch size %d, got %d", tt.expected, backend.last.BatchSize)
			}
		})
	}
}
