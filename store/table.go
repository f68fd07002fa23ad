package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/dynadown/internal/record"
)

// createTableInput describes the hkey/rkey table backing a store.
func (s *Store) createTableInput() *dynamodb.CreateTableInput {
	input := &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(record.AttrPartition), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(record.AttrSort), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(record.AttrPartition), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(record.AttrSort), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	}

	if s.config.ReadCapacityUnits > 0 && s.config.WriteCapacityUnits > 0 {
		input.BillingMode = types.BillingModeProvisioned
		input.ProvisionedThroughput = &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(s.config.ReadCapacityUnits),
			WriteCapacityUnits: aws.Int64(s.config.WriteCapacityUnits),
		}
	}
	return input
}

// ensureTable creates the table if needed and waits until it is active.
func (s *Store) ensureTable(ctx context.Context) error {
	start := time.Now()
	_, err := s.client.CreateTable(ctx, s.createTableInput())
	s.metrics.observe(opCreateTable, start, err)

	switch {
	case err == nil:
		s.logger.Info("created table", "table", s.table)
	case isResourceInUse(err):
		if s.config.ErrorIfExists {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, s.table)
		}
	default:
		return fmt.Errorf("create table %s: %w", s.table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	}, s.config.TableWaitTimeout); err != nil {
		return fmt.Errorf("wait for table %s: %w", s.table, err)
	}
	return nil
}

// deleteTable drops the table and waits until it is gone. A missing table
// counts as deleted.
func (s *Store) deleteTable(ctx context.Context) error {
	start := time.Now()
	_, err := s.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(s.table),
	})
	s.metrics.observe(opDeleteTable, start, err)
	if err != nil {
		if isResourceNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete table %s: %w", s.table, err)
	}

	waiter := dynamodb.NewTableNotExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	}, s.config.TableWaitTimeout); err != nil {
		return fmt.Errorf("wait for table %s deletion: %w", s.table, err)
	}
	s.logger.Info("deleted table", "table", s.table)
	return nil
}
