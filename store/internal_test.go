package store

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type widget struct {
	Document
}

type CarPart struct {
	Document
}

type named struct {
	Document
}

func (*named) CollectionName() string { return "custom" }

// --- collectionName Tests ---

func TestCollectionName(t *testing.T) {
	tests := []struct {
		prefix string
		typ    reflect.Type
		want   string
	}{
		{"", reflect.TypeOf(widget{}), "widgets"},
		{"", reflect.TypeOf(CarPart{}), "car_parts"},
		{"test_", reflect.TypeOf(CarPart{}), "test_car_parts"},
		{"", reflect.TypeOf(named{}), "custom"},
		{"app_", reflect.TypeOf(named{}), "app_custom"},
	}

	for _, tt := range tests {
		if got := collectionName(tt.prefix, tt.typ); got != tt.want {
			t.Errorf("%s%s: expected %q, got %q", tt.prefix, tt.typ.Name(), tt.want, got)
		}
	}
}

// --- ValidateKey Tests ---

func TestValidateKey(t *testing.T) {
	valid := []string{
		"alice",
		"A-Z_0.9",
		"user@example.com",
		"a:b(c)+d,e=f;g$h!i*j'k%l",
		strings.Repeat("k", maxKeyLength),
	}
	for _, key := range valid {
		if err := ValidateKey(key); err != nil {
			t.Errorf("%q: expected valid, got %v", key, err)
		}
	}

	invalid := []string{
		"",
		"with space",
		"with/slash",
		"tab\t",
		"ünïcode",
		"quote\"",
		strings.Repeat("k", maxKeyLength+1),
	}
	for _, key := range invalid {
		if err := ValidateKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("%q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

// --- DocumentID / SplitID Tests ---

func TestSplitID(t *testing.T) {
	tests := []struct {
		id         string
		collection string
		key        string
		ok         bool
	}{
		{"users/alice", "users", "alice", true},
		{"users/a/b", "users", "a/b", true},
		{"alice", "", "", false},
		{"/alice", "", "", false},
		{"users/", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		collection, key, ok := SplitID(tt.id)
		if collection != tt.collection || key != tt.key || ok != tt.ok {
			t.Errorf("%q: expected (%q, %q, %v), got (%q, %q, %v)",
				tt.id, tt.collection, tt.key, tt.ok, collection, key, ok)
		}
	}

	if id := DocumentID("users", "alice"); id != "users/alice" {
		t.Errorf("expected users/alice, got %q", id)
	}
}

// --- compileFilter Tests ---

func TestCompileFilter_Order(t *testing.T) {
	conds, err := compileFilter(Filter{
		"name":     "a",
		"age":      Ops{OpLt: 30, OpGt: 10},
		"sub.text": "x",
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	want := []struct {
		field string
		op    Operator
	}{
		{"age", OpLt},
		{"age", OpGt},
		{"name", OpEq},
		{"sub.text", OpEq},
	}
	if len(conds) != len(want) {
		t.Fatalf("expected %d conditions, got %d", len(want), len(conds))
	}
	for i, w := range want {
		if conds[i].Field != w.field || conds[i].Op != w.op {
			t.Errorf("position %d: expected %s %s, got %s %s", i, w.field, w.op, conds[i].Field, conds[i].Op)
		}
	}
	if got := conds[3].Path; len(got) != 2 || got[0] != "sub" || got[1] != "text" {
		t.Errorf("expected path [sub text], got %v", got)
	}
}

func TestCompileFilter_EntityOperand(t *testing.T) {
	e := &widget{Document{Key: "w1", ID: "widgets/w1"}}

	conds, err := compileFilter(Filter{AttrFrom: e})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	s, ok := conds[0].Value.(*types.AttributeValueMemberS)
	if !ok || s.Value != "widgets/w1" {
		t.Errorf("expected entity to compare by id, got %#v", conds[0].Value)
	}
}

func TestCompileFilter_OperatorMapForms(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"Ops", Ops{OpLt: "m", OpGte: "a"}},
		{"operator keys", map[Operator]any{OpLt: "m", OpGte: "a"}},
		{"string keys", map[string]any{"<": "m", ">=": "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conds, err := compileFilter(Filter{"name": tt.value})
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if len(conds) != 2 || conds[0].Op != OpLt || conds[1].Op != OpGte {
				t.Errorf("expected [< >=], got %+v", conds)
			}
		})
	}
}

func TestCompileFilter_Invalid(t *testing.T) {
	filters := []Filter{
		{"a b": 1},
		{"a.": 1},
		{".a": 1},
		{"a[0]": 1},
		{"a": Ops{"=~": 1}},
		{"a": map[string]any{"text": "x"}},
		{"a": Ops{OpEq: make(chan int)}},
	}
	for _, f := range filters {
		if _, err := compileFilter(f); !errors.Is(err, errInvalidFilter) {
			t.Errorf("%v: expected errInvalidFilter, got %v", f, err)
		}
	}
}

func TestValidPath(t *testing.T) {
	tests := map[string]bool{
		"name":        true,
		"_key":        true,
		"sub.text":    true,
		"a.b.c_9":     true,
		"":            false,
		"9a":          false,
		"a-b":         false,
		"a..b":        false,
		"name;DROP":   false,
		"name OR 1=1": false,
	}
	for path, want := range tests {
		if got := validPath(path); got != want {
			t.Errorf("%q: expected %v, got %v", path, want, got)
		}
	}
}

// --- Compare Tests ---

func TestCompare(t *testing.T) {
	s := func(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
	n := func(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }
	b := func(v bool) types.AttributeValue { return &types.AttributeValueMemberBOOL{Value: v} }
	null := &types.AttributeValueMemberNULL{Value: true}
	list := func(vs ...types.AttributeValue) types.AttributeValue { return &types.AttributeValueMemberL{Value: vs} }
	m := func(k string, v types.AttributeValue) types.AttributeValue {
		return &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{k: v}}
	}

	tests := []struct {
		name string
		a, b types.AttributeValue
		want int
	}{
		{"missing equals null", nil, null, 0},
		{"null before bool", null, b(false), -1},
		{"bool before number", b(true), n("0"), -1},
		{"number before string", n("100"), s("1"), -1},
		{"string before binary", s("z"), &types.AttributeValueMemberB{Value: []byte("a")}, -1},
		{"binary before list", &types.AttributeValueMemberB{Value: []byte("z")}, list(), -1},
		{"list before map", list(s("z")), m("a", s("a")), -1},
		{"false before true", b(false), b(true), -1},
		{"numeric not lexical", n("9"), n("10"), -1},
		{"decimal equality", n("1.50"), n("1.5"), 0},
		{"negative numbers", n("-2"), n("-10"), 1},
		{"strings", s("alice"), s("bob"), -1},
		{"equal strings", s("bob"), s("bob"), 0},
		{"list elementwise", list(n("1"), n("2")), list(n("1"), n("3")), -1},
		{"shorter list first", list(n("1")), list(n("1"), n("0")), -1},
		{"string set as list", &types.AttributeValueMemberSS{Value: []string{"a"}}, list(s("a")), 0},
		{"map by key", m("a", n("1")), m("a", n("2")), -1},
		{"map missing key", m("a", nil), m("a", null), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
			if got := Compare(tt.b, tt.a); got != -tt.want {
				t.Errorf("reversed: expected %d, got %d", -tt.want, got)
			}
		})
	}
}

// --- Query.Apply Tests ---

func TestQueryApply(t *testing.T) {
	recs := []Record{
		{"name": &types.AttributeValueMemberS{Value: "c"}, "age": &types.AttributeValueMemberN{Value: "30"}},
		{"name": &types.AttributeValueMemberS{Value: "a"}, "age": &types.AttributeValueMemberN{Value: "10"}},
		{"name": &types.AttributeValueMemberS{Value: "b"}, "age": &types.AttributeValueMemberN{Value: "20"}},
		{"name": &types.AttributeValueMemberS{Value: "d"}},
	}
	conds, err := compileFilter(Filter{"age": Ops{OpGte: 10}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	q := Query{Conditions: conds, Sort: Sort{Desc("age")}, Limit: 2}
	page, full := q.Apply(recs)

	if full != 3 {
		t.Errorf("expected 3 matches, got %d", full)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
	for i, want := range []string{"c", "b"} {
		if got := page[i]["name"].(*types.AttributeValueMemberS).Value; got != want {
			t.Errorf("position %d: expected %q, got %q", i, want, got)
		}
	}
}

func TestLookup(t *testing.T) {
	rec := Record{
		"sub": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"text": &types.AttributeValueMemberS{Value: "hello"},
		}},
		"name": &types.AttributeValueMemberS{Value: "a"},
	}

	if v, ok := Lookup(rec, []string{"sub", "text"}).(*types.AttributeValueMemberS); !ok || v.Value != "hello" {
		t.Errorf("expected hello, got %#v", v)
	}
	if v := Lookup(rec, []string{"sub", "missing"}); v != nil {
		t.Errorf("expected nil, got %#v", v)
	}
	if v := Lookup(rec, []string{"name", "text"}); v != nil {
		t.Errorf("expected nil through a scalar, got %#v", v)
	}
}

// --- helpers ---

func TestMergeArgs(t *testing.T) {
	merged := mergeArgs([]HookArgs{{"a": 1, "b": 1}, {"b": 2}, nil})
	if merged["a"] != 1 || merged["b"] != 2 {
		t.Errorf("expected later args to win, got %v", merged)
	}
	if mergeArgs(nil) == nil {
		t.Error("expected non-nil args")
	}
}

func TestTolerateMissing(t *testing.T) {
	other := errors.New("other")
	tests := []struct {
		name    string
		err     error
		ignore  bool
		want    bool
		wantErr error
	}{
		{"success", nil, false, true, nil},
		{"missing tolerated", ErrModelNotFound, true, false, nil},
		{"missing raised", ErrModelNotFound, false, false, ErrModelNotFound},
		{"other error", other, true, false, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tolerateMissing(tt.err, ErrModelNotFound, tt.ignore)
			if got != tt.want || !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Errorf("expected (%v, %v), got (%v, %v)", tt.want, tt.wantErr, got, err)
			}
		})
	}
}

func TestEmptyCursor(t *testing.T) {
	ctx := context.Background()
	c := &emptyCursor{q: Query{Count: true}}

	if _, err := c.Next(ctx); !errors.Is(err, ErrCursorDone) {
		t.Errorf("expected ErrCursorDone, got %v", err)
	}
	if n, ok := c.Count(); n != 0 || !ok {
		t.Errorf("expected count 0, got %d, %v", n, ok)
	}
	if _, ok := c.FullCount(); ok {
		t.Error("expected no full count")
	}
	if err := c.Close(ctx); err != nil {
		t.Errorf("close: %v", err)
	}
	if err := c.Close(ctx); !errors.Is(err, ErrCursorNotFound) {
		t.Errorf("expected ErrCursorNotFound, got %v", err)
	}
}
