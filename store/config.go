package store

import (
	"log/slog"
	"time"
)

// Config holds configuration for the Store.
type Config struct {
	// Client is the DynamoDB client. When nil, Open builds one from the
	// AWS fields below using the default credential chain.
	Client API

	// Region overrides the AWS region.
	Region string

	// Endpoint overrides the DynamoDB endpoint (e.g. DynamoDB Local).
	Endpoint string

	// Profile selects a shared config profile.
	Profile string

	// AccessKeyID and SecretAccessKey set static credentials.
	AccessKeyID     string
	SecretAccessKey string

	// CreateIfMissing provisions the table on Open when it does not exist.
	// Default: true
	CreateIfMissing bool

	// ErrorIfExists makes Open fail with ErrAlreadyExists when the table
	// already exists. Only checked together with CreateIfMissing.
	ErrorIfExists bool

	// ReadCapacityUnits and WriteCapacityUnits select provisioned billing
	// for created tables. Both zero means on-demand billing.
	ReadCapacityUnits  int64
	WriteCapacityUnits int64

	// TableWaitTimeout bounds how long Open and Destroy wait for the table
	// to reach the expected state.
	// Default: 2m
	TableWaitTimeout time.Duration

	// PageSize caps the items requested per query page. Zero leaves the
	// page size to DynamoDB (1 MB of data).
	PageSize int32

	// Logger receives debug and info logs. Default: slog.Default()
	Logger *slog.Logger

	// Metrics, when set, records request counts and latencies.
	Metrics *Metrics

	// Registry, when set, records the store on Open so it can be destroyed
	// later by location.
	Registry *Registry
}

// DefaultConfig returns the configuration used by Open when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		CreateIfMissing:  true,
		TableWaitTimeout: 2 * time.Minute,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.TableWaitTimeout <= 0 {
		c.TableWaitTimeout = 2 * time.Minute
	}
	if c.PageSize < 0 {
		c.PageSize = 0
	}
	if c.ReadCapacityUnits > 0 && c.WriteCapacityUnits <= 0 {
		c.WriteCapacityUnits = 1
	}
	if c.WriteCapacityUnits > 0 && c.ReadCapacityUnits <= 0 {
		c.ReadCapacityUnits = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
