// Package stream provides DynamoDB Streams handlers that keep graphs
// consistent when vertices are removed outside a Graph.
package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/store"
)

// Handler processes DynamoDB stream events of vertex collections.
type Handler struct {
	db     *store.DB
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(db *store.DB, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		db:     db,
		logger: logger,
	}
}

// HandleVertexRemoval removes the edges of vertices deleted without a Graph,
// such as through Model.Delete or DeleteKey. Vertices deleted through a Graph
// have already been cascaded; processing them again finds no edges.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleVertexRemoval(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != string(events.DynamoDBOperationTypeRemove) {
		return nil
	}

	old := ConvertImage(record.Change.OldImage)
	vertexID := stringField(old, store.AttrID)
	if vertexID == "" {
		h.logger.Warn("remove event without document id",
			"eventID", record.EventID,
		)
		return nil
	}
	// Edges have no edges of their own
	if _, isEdge := old[store.AttrFrom]; isEdge {
		return nil
	}

	removed, err := h.db.CascadeVertex(ctx, vertexID)
	if err != nil {
		return fmt.Errorf("cascade %s: %w", vertexID, err)
	}

	h.logger.Info("vertex removal processed",
		"vertex", vertexID,
		"edgesRemoved", removed,
	)
	return nil
}

// stringField returns the string attribute attr of rec, or "" if it is
// missing or not a string.
func stringField(rec store.Record, attr string) string {
	if s, ok := rec[attr].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

// ConvertImage converts a full stream image, including nested maps and lists,
// to a store.Record.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) store.Record {
	result := make(store.Record, len(image))
	for k, v := range image {
		if av := convertValue(v); av != nil {
			result[k] = av
		}
	}
	return result
}

func convertValue(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		items := v.List()
		out := make([]types.AttributeValue, 0, len(items))
		for _, item := range items {
			if av := convertValue(item); av != nil {
				out = append(out, av)
			}
		}
		return &types.AttributeValueMemberL{Value: out}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertImage(v.Map())}
	}
	return nil
}
