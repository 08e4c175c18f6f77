package checkpoint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo is an in-memory stand-in for the DynamoDB client.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	exists   bool
	statuses []types.TableStatus // returned by successive DescribeTable calls once the table exists

	describeCalls  int
	createInputs   []*dynamodb.CreateTableInput
	consistentRead []bool
	getErr         error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consistentRead = append(f.consistentRead, aws.ToBool(in.ConsistentRead))
	if f.getErr != nil {
		return nil, f.getErr
	}
	k := in.Key[dynamoKeyAttr].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[k]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := in.Item[dynamoKeyAttr].(*types.AttributeValueMemberS).Value
	f.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describeCalls++
	if !f.exists {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	status := types.TableStatusActive
	if len(f.statuses) > 0 {
		status = f.statuses[0]
		f.statuses = f.statuses[1:]
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableName: in.TableName, TableStatus: status}}, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createInputs = append(f.createInputs, in)
	f.exists = true
	return &dynamodb.CreateTableOutput{}, nil
}

func newTestDynamo(f *fakeDynamo) *DynamoDB {
	d := newDynamoDB(f, DynamoDBConfig{Table: "couch-sequences"}, zerolog.Nop())
	d.pollInterval = time.Millisecond
	return d
}

func TestDynamoDB_Contract(t *testing.T) {
	testStoreContract(t, newTestDynamo(newFakeDynamo()))
}

func TestDynamoDB_SetThenGet(t *testing.T) {
	ctx := context.Background()
	f := newFakeDynamo()
	d := newTestDynamo(f)

	_, ok, err := d.Get(ctx, "orders")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Set(ctx, "orders", "42"))
	got, ok, err := d.Get(ctx, "orders")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", got)

	for _, consistent := range f.consistentRead {
		assert.True(t, consistent, "reads must be strongly consistent")
	}
}

func TestDynamoDB_ItemWithoutValueIsAbsent(t *testing.T) {
	f := newFakeDynamo()
	f.items["orders"] = map[string]types.AttributeValue{
		dynamoKeyAttr:   &types.AttributeValueMemberS{Value: "orders"},
		dynamoValueAttr: &types.AttributeValueMemberN{Value: "42"},
	}

	_, ok, err := newTestDynamo(f).Get(context.Background(), "orders")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDynamoDB_EnsureTableCreatesAndWaits(t *testing.T) {
	f := newFakeDynamo()
	f.statuses = []types.TableStatus{types.TableStatusCreating, types.TableStatusCreating, types.TableStatusActive}

	require.NoError(t, newTestDynamo(f).EnsureTable(context.Background()))

	require.Len(t, f.createInputs, 1)
	in := f.createInputs[0]
	assert.Equal(t, "couch-sequences", aws.ToString(in.TableName))
	assert.Equal(t, types.BillingModePayPerRequest, in.BillingMode)
	require.Len(t, in.KeySchema, 1)
	assert.Equal(t, dynamoKeyAttr, aws.ToString(in.KeySchema[0].AttributeName))
	assert.Equal(t, types.KeyTypeHash, in.KeySchema[0].KeyType)
	require.Len(t, in.AttributeDefinitions, 1)
	assert.Equal(t, types.ScalarAttributeTypeS, in.AttributeDefinitions[0].AttributeType)

	// one probe, then three polls until ACTIVE
	assert.Equal(t, 4, f.describeCalls)
}

func TestDynamoDB_EnsureTableExisting(t *testing.T) {
	f := newFakeDynamo()
	f.exists = true

	require.NoError(t, newTestDynamo(f).EnsureTable(context.Background()))
	assert.Empty(t, f.createInputs)
}

func TestDynamoDB_EnsureTableTimesOut(t *testing.T) {
	f := newFakeDynamo()
	f.exists = true
	for i := 0; i < 1000; i++ {
		f.statuses = append(f.statuses, types.TableStatusCreating)
	}

	d := newTestDynamo(f)
	d.provisioningTimeout = 20 * time.Millisecond

	err := d.EnsureTable(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDynamoDB_GetError(t *testing.T) {
	f := newFakeDynamo()
	f.getErr = errors.New("throttled")

	_, _, err := newTestDynamo(f).Get(context.Background(), "orders")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
