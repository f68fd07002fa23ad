package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/dynadown/internal/codec"
	"github.com/jacentio/dynadown/internal/record"
	"github.com/jacentio/dynadown/kv"
)

// Store exposes one partition of a DynamoDB table as an ordered key-value store.
type Store struct {
	client    API
	config    Config
	location  string
	table     string
	partition string
	logger    *slog.Logger
	metrics   *Metrics
	closed    atomic.Bool
}

var _ kv.Store = (*Store)(nil)

// New creates a Store over an existing client without touching the network.
func New(client API, location string, config Config) (*Store, error) {
	config.validate()
	table, partition, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	config.Client = client
	return &Store{
		client:    client,
		config:    config,
		location:  location,
		table:     table,
		partition: partition,
		logger:    config.Logger,
		metrics:   config.Metrics,
	}, nil
}

// Open creates a Store for location ("table" or "table/partition"). It
// builds a client when config.Client is nil, provisions the table when
// CreateIfMissing is set, and registers the store with config.Registry.
func Open(ctx context.Context, location string, config Config) (*Store, error) {
	client := config.Client
	if client == nil {
		c, err := newClient(ctx, config)
		if err != nil {
			return nil, err
		}
		client = c
	}

	s, err := New(client, location, config)
	if err != nil {
		return nil, err
	}

	if s.config.CreateIfMissing {
		if err := s.ensureTable(ctx); err != nil {
			return nil, err
		}
	}

	if s.config.Registry != nil {
		s.config.Registry.Register(s)
	}
	return s, nil
}

// newClient builds a DynamoDB client from the AWS fields of config.
func newClient(ctx context.Context, config Config) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	if config.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(config.Profile))
	}
	if config.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
	}), nil
}

// Location returns the location the store was opened with.
func (s *Store) Location() string { return s.location }

// TableName returns the DynamoDB table name.
func (s *Store) TableName() string { return s.table }

// Partition returns the hash key value shared by every row of the store.
func (s *Store) Partition() string { return s.partition }

// Close marks the store closed. The client is left to its owner.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string, opts *kv.ReadOptions) (any, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = kv.DefaultReadOptions()
	}

	keyItem, err := record.KeyItem(s.partition, key)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       keyItem,
	})
	s.metrics.observe(opGet, start, err)
	if err != nil {
		return nil, err
	}

	av, ok := result.Item[record.AttrValue]
	if !ok {
		return nil, ErrNotFound
	}
	return codec.Decode(av, opts.AsBuffer)
}

// Put stores value under key, overwriting any previous value.
func (s *Store) Put(ctx context.Context, key string, value any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	item, err := record.Item(s.partition, key, value)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	s.metrics.observe(opPut, start, err)
	return err
}

// Del removes key. Deleting a missing key is not an error.
func (s *Store) Del(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	keyItem, err := record.KeyItem(s.partition, key)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       keyItem,
	})
	s.metrics.observe(opDel, start, err)
	return err
}
