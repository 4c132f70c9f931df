package store

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Operator is a field comparison operator.
type Operator string

// Supported operators.
const (
	OpEq  Operator = "=="
	OpNe  Operator = "!="
	OpLt  Operator = "<"
	OpLte Operator = "<="
	OpGt  Operator = ">"
	OpGte Operator = ">="
)

func (op Operator) valid() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

// Filter maps a dot-separated field path to either a literal (equality) or
// an operator map, given as Ops or map[string]any. Entries are ANDed. Match
// nested documents through dotted paths rather than map literals.
//
//	store.Filter{"name": "a", "sub.text": store.Ops{">": "b", "<": "d"}}
type Filter map[string]any

// Ops maps operators to operands for one field. Entries are ANDed.
type Ops map[Operator]any

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// SortKey orders results by one field path.
type SortKey struct {
	Field     string
	Direction Direction
}

// Path returns the field path segments.
func (k SortKey) Path() []string { return strings.Split(k.Field, ".") }

// Sort is an ordered list of sort keys, applied as a stable multi-key sort.
type Sort []SortKey

// Asc sorts ascending by field.
func Asc(field string) SortKey { return SortKey{Field: field, Direction: Ascending} }

// Desc sorts descending by field.
func Desc(field string) SortKey { return SortKey{Field: field, Direction: Descending} }

// Condition is one compiled field comparison.
type Condition struct {
	Field string
	Path  []string
	Op    Operator
	Value types.AttributeValue
}

// Query is the compiled form of a find request handed to a Backend.
type Query struct {
	Conditions []Condition
	Sort       Sort

	// Limit caps the number of results (0 = no limit).
	Limit int

	// Count requests the number of results.
	Count bool

	// FullCount requests the number of matches ignoring Limit.
	FullCount bool

	// BatchSize is the number of records fetched per round trip.
	BatchSize int
}

var segmentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validPath reports whether field is a dot-separated path of safe segments.
func validPath(field string) bool {
	if field == "" {
		return false
	}
	for _, seg := range strings.Split(field, ".") {
		if !segmentPattern.MatchString(seg) {
			return false
		}
	}
	return true
}

// compileFilter turns a Filter into conditions ordered by field path.
// Malformed paths or operators fail with errInvalidFilter.
func compileFilter(f Filter) ([]Condition, error) {
	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var conds []Condition
	for _, field := range fields {
		if !validPath(field) {
			return nil, fmt.Errorf("%w: field %q", errInvalidFilter, field)
		}
		path := strings.Split(field, ".")

		ops := operators(f[field])
		keys := make([]string, 0, len(ops))
		for op := range ops {
			keys = append(keys, string(op))
		}
		sort.Strings(keys)

		for _, k := range keys {
			op := Operator(k)
			if !op.valid() {
				return nil, fmt.Errorf("%w: operator %q on %q", errInvalidFilter, k, field)
			}
			av, err := operand(ops[op])
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", errInvalidFilter, field, err)
			}
			conds = append(conds, Condition{Field: field, Path: path, Op: op, Value: av})
		}
	}
	return conds, nil
}

// operators returns the operator map of a filter value. Anything that is not
// an operator map is an equality operand.
func operators(v any) Ops {
	switch v := v.(type) {
	case Ops:
		return v
	case map[Operator]any:
		return v
	case map[string]any:
		ops := make(Ops, len(v))
		for k, operand := range v {
			ops[Operator(k)] = operand
		}
		return ops
	}
	return Ops{OpEq: v}
}

// operand marshals a filter value. Entities compare by id.
func operand(v any) (types.AttributeValue, error) {
	if e, ok := v.(Entity); ok {
		return &types.AttributeValueMemberS{Value: e.Doc().ID}, nil
	}
	return attributevalue.Marshal(v)
}

func validateSort(s Sort) error {
	for _, k := range s {
		if !validPath(k.Field) {
			return fmt.Errorf("%w: invalid sort field %q", ErrStore, k.Field)
		}
		if k.Direction != Ascending && k.Direction != Descending {
			return fmt.Errorf("%w: invalid sort direction for %q", ErrStore, k.Field)
		}
	}
	return nil
}

// Lookup returns the value at path, or nil if any segment is missing.
func Lookup(rec Record, path []string) types.AttributeValue {
	var cur types.AttributeValue = &types.AttributeValueMemberM{Value: rec}
	for _, seg := range path {
		m, ok := cur.(*types.AttributeValueMemberM)
		if !ok {
			return nil
		}
		if cur, ok = m.Value[seg]; !ok {
			return nil
		}
	}
	return cur
}

// Match reports whether rec satisfies every condition.
func (q Query) Match(rec Record) bool {
	for _, c := range q.Conditions {
		cmp := Compare(Lookup(rec, c.Path), c.Value)
		var ok bool
		switch c.Op {
		case OpEq:
			ok = cmp == 0
		case OpNe:
			ok = cmp != 0
		case OpLt:
			ok = cmp < 0
		case OpLte:
			ok = cmp <= 0
		case OpGt:
			ok = cmp > 0
		case OpGte:
			ok = cmp >= 0
		}
		if !ok {
			return false
		}
	}
	return true
}

// SortRecords sorts recs in place by q.Sort.
func (q Query) SortRecords(recs []Record) {
	if len(q.Sort) == 0 {
		return
	}
	paths := make([][]string, len(q.Sort))
	for i, k := range q.Sort {
		paths[i] = k.Path()
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for n, k := range q.Sort {
			cmp := Compare(Lookup(recs[i], paths[n]), Lookup(recs[j], paths[n]))
			if cmp == 0 {
				continue
			}
			if k.Direction == Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// Apply filters, sorts and limits recs. It returns the page and the number of
// matches before the limit.
func (q Query) Apply(recs []Record) ([]Record, int) {
	matched := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if q.Match(rec) {
			matched = append(matched, rec)
		}
	}
	q.SortRecords(matched)
	full := len(matched)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, full
}

// typeRank orders values of different types: null < bool < number < string
// < binary < list < map.
func typeRank(v types.AttributeValue) int {
	switch v.(type) {
	case nil, *types.AttributeValueMemberNULL:
		return 0
	case *types.AttributeValueMemberBOOL:
		return 1
	case *types.AttributeValueMemberN:
		return 2
	case *types.AttributeValueMemberS:
		return 3
	case *types.AttributeValueMemberB:
		return 4
	case *types.AttributeValueMemberL, *types.AttributeValueMemberSS,
		*types.AttributeValueMemberNS, *types.AttributeValueMemberBS:
		return 5
	case *types.AttributeValueMemberM:
		return 6
	}
	return 7
}

// Compare orders two attribute values. Missing values compare as null.
func Compare(a, b types.AttributeValue) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch av := a.(type) {
	case *types.AttributeValueMemberBOOL:
		bv := b.(*types.AttributeValueMemberBOOL)
		return cmpBool(av.Value, bv.Value)
	case *types.AttributeValueMemberN:
		return cmpNumber(av.Value, b.(*types.AttributeValueMemberN).Value)
	case *types.AttributeValueMemberS:
		return strings.Compare(av.Value, b.(*types.AttributeValueMemberS).Value)
	case *types.AttributeValueMemberB:
		return strings.Compare(string(av.Value), string(b.(*types.AttributeValueMemberB).Value))
	case *types.AttributeValueMemberM:
		return cmpMap(av.Value, b.(*types.AttributeValueMemberM).Value)
	}
	if ra == 5 {
		return cmpList(listOf(a), listOf(b))
	}
	return 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func cmpNumber(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	case math.IsNaN(fa) || math.IsNaN(fb):
		return strings.Compare(a, b)
	}
	return 0
}

func cmpList(a, b []types.AttributeValue) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmpInt(len(a), len(b))
}

func cmpMap(a, b map[string]types.AttributeValue) int {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, k := range sorted {
		if c := Compare(a[k], b[k]); c != 0 {
			return c
		}
	}
	return 0
}

func listOf(v types.AttributeValue) []types.AttributeValue {
	switch lv := v.(type) {
	case *types.AttributeValueMemberL:
		return lv.Value
	case *types.AttributeValueMemberSS:
		out := make([]types.AttributeValue, len(lv.Value))
		for i, s := range lv.Value {
			out[i] = &types.AttributeValueMemberS{Value: s}
		}
		return out
	case *types.AttributeValueMemberNS:
		out := make([]types.AttributeValue, len(lv.Value))
		for i, n := range lv.Value {
			out[i] = &types.AttributeValueMemberN{Value: n}
		}
		return out
	case *types.AttributeValueMemberBS:
		out := make([]types.AttributeValue, len(lv.Value))
		for i, b := range lv.Value {
			out[i] = &types.AttributeValueMemberB{Value: b}
		}
		return out
	}
	return nil
}
