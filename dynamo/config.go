package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Config holds configuration for the Backend and Locker.
type Config struct {
	// GraphTable stores graph definitions.
	// Default: "canopy_graphs"
	GraphTable string

	// IndexTable stores unique index definitions per collection.
	// Default: "canopy_indexes"
	IndexTable string

	// ConstraintTable stores one record per unique index entry.
	// Default: "canopy_unique_constraints"
	ConstraintTable string

	// LockTable stores advisory locks.
	// Default: "canopy_locks"
	LockTable string

	// LockTTL bounds how long a crashed holder keeps a lock.
	// Default: 1 minute
	LockTTL time.Duration

	// LockPollInterval is the wait between attempts of a blocking Acquire.
	// Default: 100ms
	LockPollInterval time.Duration

	// ScanSegments is the number of parallel segments used when a query must
	// read its whole result set (sorting or counting).
	// Default: 1 (single sequential scan)
	// Max: 64
	ScanSegments int

	// TableWaitTimeout bounds how long EnsureCollection waits for a new table
	// to become active.
	// Default: 2 minutes
	TableWaitTimeout time.Duration
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		GraphTable:       "canopy_graphs",
		IndexTable:       "canopy_indexes",
		ConstraintTable:  "canopy_unique_constraints",
		LockTable:        "canopy_locks",
		LockTTL:          time.Minute,
		LockPollInterval: 100 * time.Millisecond,
		ScanSegments:     1,
		TableWaitTimeout: 2 * time.Minute,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	d := DefaultConfig()
	if c.GraphTable == "" {
		c.GraphTable = d.GraphTable
	}
	if c.IndexTable == "" {
		c.IndexTable = d.IndexTable
	}
	if c.ConstraintTable == "" {
		c.ConstraintTable = d.ConstraintTable
	}
	if c.LockTable == "" {
		c.LockTable = d.LockTable
	}
	if c.LockTTL <= 0 {
		c.LockTTL = d.LockTTL
	}
	if c.LockPollInterval <= 0 {
		c.LockPollInterval = d.LockPollInterval
	}
	if c.ScanSegments < 1 {
		c.ScanSegments = 1
	}
	if c.ScanSegments > 64 {
		c.ScanSegments = 64
	}
	if c.TableWaitTimeout <= 0 {
		c.TableWaitTimeout = d.TableWaitTimeout
	}
}

// ClientConfig selects how NewClient resolves AWS configuration.
type ClientConfig struct {
	// Region overrides the region from the environment or shared config.
	Region string

	// Profile selects a shared config profile.
	Profile string

	// Endpoint overrides the DynamoDB endpoint, e.g. "http://localhost:8000"
	// for DynamoDB Local.
	Endpoint string
}

// NewClient loads the default AWS configuration and returns a DynamoDB client.
func NewClient(ctx context.Context, cc ClientConfig) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cc.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cc.Region))
	}
	if cc.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cc.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if cc.Endpoint != "" {
			o.BaseEndpoint = aws.String(cc.Endpoint)
		}
	}), nil
}
