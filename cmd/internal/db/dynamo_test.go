package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	writes     []*dynamodb.TransactWriteItemsInput
	statements []*dynamodb.ExecuteStatementInput
	writeErr   error
	pages      []*dynamodb.ExecuteStatementOutput
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.writes = append(f.writes, in)
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) ExecuteStatement(_ context.Context, in *dynamodb.ExecuteStatementInput, _ ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error) {
	f.statements = append(f.statements, in)
	if len(f.pages) == 0 {
		return &dynamodb.ExecuteStatementOutput{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func item(field, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{field: &types.AttributeValueMemberS{Value: value}}
}

func TestDynamoStore_AtomicWrite(t *testing.T) {
	fake := &fakeDynamo{}
	store := NewDynamoStore(fake, map[string]string{CollectionStudents: "prod-students"})

	err := store.AtomicWrite(context.Background(), []Operation{
		{Collection: CollectionAddresses, Key: "a-1", Record: map[string]any{"town_city": "Polokwane", "suburb": nil}},
		{Collection: CollectionStudents, Key: "s-1", Record: map[string]any{"id_number": "8001015009087", "funded": true}},
	})
	require.NoError(t, err)
	require.Len(t, fake.writes, 1)

	items := fake.writes[0].TransactItems
	require.Len(t, items, 2)

	assert.Equal(t, "addresses", aws.ToString(items[0].Put.TableName))
	assert.Equal(t, "prod-students", aws.ToString(items[1].Put.TableName))
	assert.Equal(t, "attribute_not_exists(#pk)", aws.ToString(items[1].Put.ConditionExpression))

	key, ok := items[1].Put.Item[KeyField].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, "s-1", key.Value)

	_, isNull := items[0].Put.Item["suburb"].(*types.AttributeValueMemberNULL)
	assert.True(t, isNull)
}

func TestDynamoStore_AtomicWrite_Limits(t *testing.T) {
	fake := &fakeDynamo{}
	store := NewDynamoStore(fake, nil)

	ops := make([]Operation, DynamoLimits.MaxWriteOps+1)
	for i := range ops {
		ops[i] = Operation{Collection: CollectionStudents, Key: fmt.Sprintf("s-%d", i)}
	}

	err := store.AtomicWrite(context.Background(), ops)
	assert.ErrorIs(t, err, ErrTooManyOperations)
	assert.Empty(t, fake.writes)
}

func TestDynamoStore_AtomicWrite_PropagatesError(t *testing.T) {
	fake := &fakeDynamo{writeErr: errors.New("TransactionCanceledException: Transaction cancelled, please refer cancellation reasons for specific reasons [ConditionalCheckFailed, None]")}
	store := NewDynamoStore(fake, nil)

	err := store.AtomicWrite(context.Background(), []Operation{{Collection: CollectionStudents, Key: "s-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ConditionalCheckFailed")
}

func TestDynamoStore_AtomicWrite_SurfacesCancellationReason(t *testing.T) {
	// GIVEN: a cancelled transaction whose message does not mention the reason
	fake := &fakeDynamo{writeErr: &types.TransactionCanceledException{
		Message: aws.String("Transaction cancelled"),
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String("ConditionalCheckFailed")},
		},
	}}
	store := NewDynamoStore(fake, nil)

	// WHEN
	err := store.AtomicWrite(context.Background(), []Operation{{Collection: CollectionStudents, Key: "s-1"}})

	// THEN: the reason code is in the message and the original error is still reachable
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ConditionalCheckFailed")
	var cancelled *types.TransactionCanceledException
	assert.ErrorAs(t, err, &cancelled)
}

func TestDynamoStore_ExistingKeys_AddsAPICode(t *testing.T) {
	fake := &failingStatements{err: &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException", Message: "slow down"}}
	store := NewDynamoStore(fake, nil)

	_, err := store.ExistingKeys(context.Background(), CollectionStudents, "id_number", []string{"A"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ProvisionedThroughputExceededException")
}

type failingStatements struct {
	fakeDynamo
	err error
}

func (f *failingStatements) ExecuteStatement(_ context.Context, _ *dynamodb.ExecuteStatementInput, _ ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error) {
	return nil, f.err
}

func TestDynamoStore_ExistingKeys_PaginatesAndDeduplicates(t *testing.T) {
	fake := &fakeDynamo{pages: []*dynamodb.ExecuteStatementOutput{
		{Items: []map[string]types.AttributeValue{item("id_number", "A")}, NextToken: aws.String("t1")},
		{Items: []map[string]types.AttributeValue{item("id_number", "B"), item("id_number", "A")}},
	}}
	store := NewDynamoStore(fake, nil)

	found, err := store.ExistingKeys(context.Background(), CollectionStudents, "id_number", []string{"A", "B", "C"})

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, found)
	require.Len(t, fake.statements, 2)
	assert.Equal(t, `SELECT "id_number" FROM "students"."id_number-index" WHERE "id_number" IN [?,?,?]`,
		aws.ToString(fake.statements[0].Statement))
	assert.Len(t, fake.statements[0].Parameters, 3)
	assert.Equal(t, "t1", aws.ToString(fake.statements[1].NextToken))
}

func TestDynamoStore_ExistingKeys_Limit(t *testing.T) {
	store := NewDynamoStore(&fakeDynamo{}, nil)
	values := make([]string, DynamoLimits.MaxQueryValues+1)
	_, err := store.ExistingKeys(context.Background(), CollectionStudents, "id_number", values)
	assert.ErrorIs(t, err, ErrTooManyValues)
}
