//go:build e2e

// Package e2e contains end-to-end integration tests using real DynamoDB tables.
// Run with: go test -tags=e2e -v ./e2e/...
//
// DYNADOWN_E2E_ENDPOINT points the tests at DynamoDB Local
// (e.g. http://localhost:8000); DYNADOWN_E2E_PROFILE selects an AWS profile.
package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/jacentio/dynadown/kv"
	"github.com/jacentio/dynadown/store"
)

// Table names are unique per test run to avoid conflicts.
const tablePrefix = "dynadown-e2e-test"

var (
	testID    string
	tableName string

	ddbClient *dynamodb.Client
	registry  *store.Registry
)

// --- Test Setup & Teardown ---

func TestMain(m *testing.M) {
	testID = uuid.New().String()[:8]
	tableName = fmt.Sprintf("%s-%s", tablePrefix, testID)

	fmt.Printf("Test ID: %s\n", testID)
	fmt.Printf("Table: %s\n", tableName)

	ctx := context.Background()
	client, err := newClient(ctx)
	if err != nil {
		fmt.Printf("Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}
	ddbClient = client
	registry = store.NewRegistry()

	// Provision the shared table once through Open.
	if _, err := openStore(ctx, "setup"); err != nil {
		fmt.Printf("Failed to create table: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := registry.Destroy(ctx, tableName+"/setup"); err != nil {
		fmt.Printf("Failed to delete table: %v\n", err)
	}

	os.Exit(code)
}

func newClient(ctx context.Context) (*dynamodb.Client, error) {
	var opts []func(*config.LoadOptions) error
	if profile := os.Getenv("DYNADOWN_E2E_PROFILE"); profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	endpoint := os.Getenv("DYNADOWN_E2E_ENDPOINT")
	if endpoint != "" {
		opts = append(opts,
			config.WithRegion("us-east-1"),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("local", "local", "")),
		)
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// openStore opens a fresh partition of the shared table.
func openStore(ctx context.Context, partition string) (*store.Store, error) {
	cfg := store.DefaultConfig()
	cfg.Client = ddbClient
	cfg.Registry = registry
	cfg.TableWaitTimeout = 2 * time.Minute
	return store.Open(ctx, tableName+"/"+partition, cfg)
}

func newPartition(t *testing.T) *store.Store {
	t.Helper()
	s, err := openStore(context.Background(), t.Name()+"-"+uuid.New().String()[:8])
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func scanKeys(t *testing.T, s *store.Store, opts kv.IteratorOptions) []string {
	t.Helper()
	opts.KeyAsBuffer = false
	it := s.Iterator(context.Background(), opts)
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, it.Key().(string))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Iterator failed: %v", err)
	}
	return keys
}

// --- Tests ---

func TestOpen_ErrorIfExists(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.Client = ddbClient
	cfg.ErrorIfExists = true

	_, err := store.Open(context.Background(), tableName, cfg)
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestPutGetDel(t *testing.T) {
	ctx := context.Background()
	s := newPartition(t)

	value := map[string]any{"name": "alice", "age": 30, "tags": []any{"x", true}}
	if err := s.Put(ctx, "alice", value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(ctx, "alice", &kv.ReadOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	want := map[string]any{"name": "alice", "age": float64(30), "tags": []any{"x", true}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %#v, got %#v", want, got)
	}

	if err := s.Del(ctx, "alice"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if _, err := s.Get(ctx, "alice", nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEmptyValues(t *testing.T) {
	ctx := context.Background()
	s := newPartition(t)

	for _, v := range []any{nil, "", []byte{}} {
		if err := s.Put(ctx, "empty", v); err != nil {
			t.Fatalf("Put(%#v) failed: %v", v, err)
		}
		got, err := s.Get(ctx, "empty", nil)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if b, ok := got.([]byte); !ok || len(b) != 0 {
			t.Errorf("expected empty []byte, got %#v", got)
		}
	}
}

func TestIterator_Ranges(t *testing.T) {
	ctx := context.Background()
	s := newPartition(t)
	for _, k := range []string{"a", "b", "c", "d"} {
		if err := s.Put(ctx, k, k); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	opts := kv.DefaultIteratorOptions()
	opts.Gt, opts.Lt = "a", "d"
	if got := scanKeys(t, s, opts); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("expected [b c], got %v", got)
	}

	opts.Reverse = true
	if got := scanKeys(t, s, opts); !reflect.DeepEqual(got, []string{"c", "b"}) {
		t.Errorf("expected [c b], got %v", got)
	}

	opts = kv.DefaultIteratorOptions()
	opts.Limit = 2
	if got := scanKeys(t, s, opts); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("expected [a b], got %v", got)
	}

	opts = kv.DefaultIteratorOptions()
	if got := scanKeys(t, s, opts); !reflect.DeepEqual(got, []string{"a", "b", "c", "d"}) {
		t.Errorf("expected full scan, got %v", got)
	}
}

func TestIterator_MissingTable(t *testing.T) {
	s, err := store.New(ddbClient, tableName+"-missing", store.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if got := scanKeys(t, s, kv.DefaultIteratorOptions()); len(got) != 0 {
		t.Errorf("expected empty scan, got %v", got)
	}
}

func TestBatch_LargeAndDeduplicated(t *testing.T) {
	ctx := context.Background()
	s := newPartition(t)

	var ops []kv.BatchOp
	for i := 0; i < 60; i++ {
		ops = append(ops, kv.Put(fmt.Sprintf("k%02d", i), i))
	}
	ops = append(ops, kv.Del("k00"), kv.Put("k01", "last"))
	if err := s.Batch(ctx, ops); err != nil {
		t.Fatalf("Batch failed: %v", err)
	}

	keys := scanKeys(t, s, kv.DefaultIteratorOptions())
	if len(keys) != 59 {
		t.Errorf("expected 59 keys, got %d", len(keys))
	}
	got, err := s.Get(ctx, "k01", &kv.ReadOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "last" {
		t.Errorf("expected \"last\", got %#v", got)
	}
}
