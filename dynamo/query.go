package dynamo

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/canopy/store"
)

// filterExpression renders the equality conditions of q that DynamoDB can
// evaluate server side. The remaining conditions are checked client side;
// every record is re-checked with q.Match regardless.
//
// Field segments and values are bound as placeholders, never spliced into
// the expression text.
func filterExpression(q store.Query) (string, map[string]string, map[string]types.AttributeValue) {
	var clauses []string
	names := make(map[string]string)
	values := make(map[string]types.AttributeValue)
	aliases := make(map[string]string)

	for i, c := range q.Conditions {
		if c.Op != store.OpEq || !pushable(c.Value) {
			continue
		}
		segs := make([]string, len(c.Path))
		for j, seg := range c.Path {
			alias, ok := aliases[seg]
			if !ok {
				alias = "#f" + strconv.Itoa(len(aliases))
				aliases[seg] = alias
			}
			segs[j] = alias
		}
		v := ":v" + strconv.Itoa(i)
		values[v] = c.Value
		clauses = append(clauses, strings.Join(segs, ".")+" = "+v)
	}
	for seg, alias := range aliases {
		names[alias] = seg
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return strings.Join(clauses, " AND "), names, values
}

// pushable reports whether DynamoDB equality agrees with store.Compare for v.
// Null is excluded because a missing attribute compares equal to null.
func pushable(v types.AttributeValue) bool {
	switch v.(type) {
	case *types.AttributeValueMemberS, *types.AttributeValueMemberN,
		*types.AttributeValueMemberB, *types.AttributeValueMemberBOOL:
		return true
	}
	return false
}

func (b *Backend) scanInput(collection string, q store.Query) *dynamodb.ScanInput {
	input := &dynamodb.ScanInput{
		TableName:      aws.String(collection),
		ConsistentRead: aws.Bool(true),
	}
	if q.BatchSize > 0 {
		input.Limit = aws.Int32(int32(min(q.BatchSize, store.MaxBatchSize)))
	}
	if expr, names, values := filterExpression(q); expr != "" {
		input.FilterExpression = aws.String(expr)
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}
	return input
}

// Query implements store.Backend. Unsorted, uncounted queries stream pages
// lazily. Anything else reads the full result set, in parallel segments when
// configured, and sorts it in memory.
func (b *Backend) Query(ctx context.Context, collection string, q store.Query) (store.RawCursor, error) {
	if ok, err := b.HasCollection(ctx, collection); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: collection %q", store.ErrDataSourceNotFound, collection)
	}

	if len(q.Sort) == 0 && !q.Count && !q.FullCount {
		return &scanCursor{
			paginator:  dynamodb.NewScanPaginator(b.client, b.scanInput(collection, q)),
			q:          q,
			collection: collection,
		}, nil
	}

	recs, err := b.scanAll(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	page, full := q.Apply(recs)
	return newSliceCursor(page, full, q), nil
}

// scanAll reads every record matching the pushed-down filter. With more than
// one segment each segment is scanned concurrently.
func (b *Backend) scanAll(ctx context.Context, collection string, q store.Query) ([]store.Record, error) {
	segments := b.config.ScanSegments
	results := make([][]store.Record, segments)

	g, ctx := errgroup.WithContext(ctx)
	for seg := 0; seg < segments; seg++ {
		g.Go(func() error {
			input := b.scanInput(collection, q)
			if segments > 1 {
				input.Segment = aws.Int32(int32(seg))
				input.TotalSegments = aws.Int32(int32(segments))
			}
			paginator := dynamodb.NewScanPaginator(b.client, input)
			for paginator.HasMorePages() {
				page, err := paginator.NextPage(ctx)
				if err != nil {
					return translate(err, collection)
				}
				for _, item := range page.Items {
					results[seg] = append(results[seg], strip(item))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []store.Record
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// scanCursor streams scan pages on demand.
type scanCursor struct {
	mu         sync.Mutex
	paginator  *dynamodb.ScanPaginator
	page       []map[string]types.AttributeValue
	q          store.Query
	collection string
	returned   int
	closed     bool
}

// Next implements store.RawCursor.
func (c *scanCursor) Next(ctx context.Context) (store.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("%w: cursor was released", store.ErrCursorNotFound)
	}
	for {
		if c.q.Limit > 0 && c.returned >= c.q.Limit {
			return nil, store.ErrCursorDone
		}
		for len(c.page) > 0 {
			item := c.page[0]
			c.page = c.page[1:]
			rec := strip(item)
			if c.q.Match(rec) {
				c.returned++
				return rec, nil
			}
		}
		if !c.paginator.HasMorePages() {
			return nil, store.ErrCursorDone
		}
		out, err := c.paginator.NextPage(ctx)
		if err != nil {
			return nil, translate(err, c.collection)
		}
		c.page = out.Items
	}
}

// Count implements store.RawCursor. Streaming cursors never count.
func (c *scanCursor) Count() (int, bool) { return 0, false }

// FullCount implements store.RawCursor.
func (c *scanCursor) FullCount() (int, bool) { return 0, false }

// Close implements store.RawCursor.
func (c *scanCursor) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: cursor was already released", store.ErrCursorNotFound)
	}
	c.closed = true
	c.page = nil
	return nil
}

// sliceCursor hands out a materialized result set.
type sliceCursor struct {
	mu        sync.Mutex
	results   []store.Record
	count     int
	fullCount int
	q         store.Query
	closed    bool
}

func newSliceCursor(results []store.Record, fullCount int, q store.Query) *sliceCursor {
	return &sliceCursor{results: results, count: len(results), fullCount: fullCount, q: q}
}

// Next implements store.RawCursor.
func (c *sliceCursor) Next(context.Context) (store.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("%w: cursor was released", store.ErrCursorNotFound)
	}
	if len(c.results) == 0 {
		return nil, store.ErrCursorDone
	}
	rec := c.results[0]
	c.results = c.results[1:]
	return rec, nil
}

// Count implements store.RawCursor.
func (c *sliceCursor) Count() (int, bool) { return c.count, c.q.Count }

// FullCount implements store.RawCursor.
func (c *sliceCursor) FullCount() (int, bool) { return c.fullCount, c.q.FullCount }

// Close implements store.RawCursor.
func (c *sliceCursor) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: cursor was already released", store.ErrCursorNotFound)
	}
	c.closed = true
	c.results = nil
	return nil
}

// encodeValue renders v canonically so values that store.Compare treats as
// equal produce the same unique constraint key.
func encodeValue(v types.AttributeValue) string {
	switch av := v.(type) {
	case nil, *types.AttributeValueMemberNULL:
		return "null"
	case *types.AttributeValueMemberBOOL:
		return "bool:" + strconv.FormatBool(av.Value)
	case *types.AttributeValueMemberN:
		return "n:" + canonicalNumber(av.Value)
	case *types.AttributeValueMemberS:
		return "s:" + strconv.Quote(av.Value)
	case *types.AttributeValueMemberB:
		return "b:" + base64.StdEncoding.EncodeToString(av.Value)
	case *types.AttributeValueMemberL:
		parts := make([]string, len(av.Value))
		for i, item := range av.Value {
			parts[i] = encodeValue(item)
		}
		return "l[" + strings.Join(parts, ",") + "]"
	case *types.AttributeValueMemberSS:
		parts := make([]string, len(av.Value))
		for i, s := range av.Value {
			parts[i] = "s:" + strconv.Quote(s)
		}
		return "l[" + strings.Join(parts, ",") + "]"
	case *types.AttributeValueMemberNS:
		parts := make([]string, len(av.Value))
		for i, n := range av.Value {
			parts[i] = "n:" + canonicalNumber(n)
		}
		return "l[" + strings.Join(parts, ",") + "]"
	case *types.AttributeValueMemberBS:
		parts := make([]string, len(av.Value))
		for i, b := range av.Value {
			parts[i] = "b:" + base64.StdEncoding.EncodeToString(b)
		}
		return "l[" + strings.Join(parts, ",") + "]"
	case *types.AttributeValueMemberM:
		keys := make([]string, 0, len(av.Value))
		for k, item := range av.Value {
			// Null members are indistinguishable from absent ones
			if encodeValue(item) == "null" {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + "=" + encodeValue(av.Value[k])
		}
		return "m{" + strings.Join(parts, ",") + "}"
	}
	return fmt.Sprintf("%T", v)
}

func canonicalNumber(n string) string {
	f, err := strconv.ParseFloat(n, 64)
	if err != nil {
		return n
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
