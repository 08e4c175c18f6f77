package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/tarungka/couchstream/stream"
)

const (
	dynamoKeyAttr   = "key"
	dynamoValueAttr = "value"

	defaultPollInterval        = time.Second
	defaultProvisioningTimeout = 5 * time.Minute
)

type DynamoDBConfig struct {
	Table    string `koanf:"table"`
	LocalURL string `koanf:"local_url"`
	Region   string `koanf:"region"`
	// CreateTable provisions the table when it does not exist.
	CreateTable         bool          `koanf:"create_table"`
	ProvisioningTimeout time.Duration `koanf:"provisioning_timeout"`
}

// DynamoDBAPI is the subset of the DynamoDB client used by the store.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// DynamoDB keeps checkpoints in a two attribute table keyed by "key".
type DynamoDB struct {
	client DynamoDBAPI
	table  string
	logger zerolog.Logger

	pollInterval        time.Duration
	provisioningTimeout time.Duration
}

func NewDynamoDB(ctx context.Context, c DynamoDBConfig, logger zerolog.Logger) (*DynamoDB, error) {
	var opts []func(*config.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, config.WithRegion(c.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, stream.Wrap(stream.KindConfig, "dynamodb", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if c.LocalURL != "" {
			logger.Info().Str("url", c.LocalURL).Msg("using local DynamoDB")
			o.BaseEndpoint = aws.String(c.LocalURL)
		}
	})

	d := newDynamoDB(client, c, logger)
	if c.CreateTable {
		if err := d.EnsureTable(ctx); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func newDynamoDB(client DynamoDBAPI, c DynamoDBConfig, logger zerolog.Logger) *DynamoDB {
	timeout := c.ProvisioningTimeout
	if timeout <= 0 {
		timeout = defaultProvisioningTimeout
	}
	return &DynamoDB{
		client:              client,
		table:               c.Table,
		logger:              logger.With().Str("service", "dynamodb").Str("table_name", c.Table).Logger(),
		pollInterval:        defaultPollInterval,
		provisioningTimeout: timeout,
	}
}

// EnsureTable creates the table if it is missing and blocks until it reports
// ACTIVE, polling at a fixed interval.
func (d *DynamoDB) EnsureTable(ctx context.Context) error {
	_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.table)})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			return unavailable("dynamodb describe table", err)
		}

		d.logger.Info().Msg("creating table")
		_, err = d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(d.table),
			AttributeDefinitions: []types.AttributeDefinition{{
				AttributeName: aws.String(dynamoKeyAttr),
				AttributeType: types.ScalarAttributeTypeS,
			}},
			KeySchema: []types.KeySchemaElement{{
				AttributeName: aws.String(dynamoKeyAttr),
				KeyType:       types.KeyTypeHash,
			}},
			BillingMode: types.BillingModePayPerRequest,
		})
		if err != nil {
			return unavailable("dynamodb create table", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.provisioningTimeout)
	defer cancel()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		d.logger.Info().Msg("waiting for table to become available")

		out, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.table)})
		if err != nil {
			return unavailable("dynamodb describe table", err)
		}
		if out.Table != nil && out.Table.TableStatus == types.TableStatusActive {
			d.logger.Info().Msg("table is available")
			return nil
		}

		select {
		case <-ctx.Done():
			return unavailable("dynamodb wait for table", fmt.Errorf("table %s not active: %w", d.table, ctx.Err()))
		case <-ticker.C:
		}
	}
}

func (d *DynamoDB) Get(ctx context.Context, key string) (string, bool, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key: map[string]types.AttributeValue{
			dynamoKeyAttr: &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		d.logger.Err(err).Str("key", key).Msg("error reading sequence")
		return "", false, unavailable("dynamodb get", err)
	}

	value, ok := out.Item[dynamoValueAttr].(*types.AttributeValueMemberS)
	if !ok {
		return "", false, nil
	}
	return value.Value, true, nil
}

func (d *DynamoDB) Set(ctx context.Context, key, value string) error {
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item: map[string]types.AttributeValue{
			dynamoKeyAttr:   &types.AttributeValueMemberS{Value: key},
			dynamoValueAttr: &types.AttributeValueMemberS{Value: value},
		},
	})
	if err != nil {
		d.logger.Err(err).Str("key", key).Msg("error writing sequence")
		return unavailable("dynamodb set", err)
	}
	return nil
}

func (d *DynamoDB) Close() error { return nil }
