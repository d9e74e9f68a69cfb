package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// Жёсткие лимиты DynamoDB: в TransactWriteItems до 100 действий, в списке IN
// PartiQL по ключевому атрибуту до 50 значений.
var DynamoLimits = Limits{MaxWriteOps: 100, MaxQueryValues: 50}

// DynamoAPI - часть клиента DynamoDB, которая нужна хранилищу.
type DynamoAPI interface {
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	ExecuteStatement(ctx context.Context, params *dynamodb.ExecuteStatementInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error)
}

// DynamoStore реализует Store на DynamoDB. Коллекция - таблица; ExistingKeys
// ходит в GSI "<field>-index".
type DynamoStore struct {
	client DynamoAPI
	tables map[string]string
}

// DynamoOptions configure NewDynamoStoreFromConfig.
type DynamoOptions struct {
	Region   string
	Profile  string
	Endpoint string
	// Tables: коллекция -> таблица; если записи нет, таблица называется как коллекция.
	Tables map[string]string
}

// NewDynamoStore wraps an existing client.
func NewDynamoStore(client DynamoAPI, tables map[string]string) *DynamoStore {
	if tables == nil {
		tables = map[string]string{}
	}
	return &DynamoStore{client: client, tables: tables}
}

// NewDynamoStoreFromConfig грузит конфигурацию AWS обычным путём (env, профиль).
func NewDynamoStoreFromConfig(ctx context.Context, opts DynamoOptions) (*DynamoStore, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return NewDynamoStore(client, opts.Tables), nil
}

func (s *DynamoStore) Limits() Limits {
	return DynamoLimits
}

func (s *DynamoStore) table(collection string) string {
	if t, ok := s.tables[collection]; ok && t != "" {
		return t
	}
	return collection
}

func (s *DynamoStore) AtomicWrite(ctx context.Context, ops []Operation) error {
	if err := checkWrite(DynamoLimits, ops); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	items := make([]types.TransactWriteItem, 0, len(ops))
	for _, op := range ops {
		av, err := marshalRecord(op)
		if err != nil {
			return err
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                aws.String(s.table(op.Collection)),
				Item:                     av,
				ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
				ExpressionAttributeNames: map[string]string{"#pk": KeyField},
			},
		})
	}

	if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	}); err != nil {
		return fmt.Errorf("transact write %d items: %w", len(items), withAPICode(err))
	}
	return nil
}

func (s *DynamoStore) ExistingKeys(ctx context.Context, collection, field string, values []string) ([]string, error) {
	if err := checkQuery(DynamoLimits, collection, values); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
	statement := fmt.Sprintf(`SELECT %q FROM %q.%q WHERE %q IN [%s]`,
		field, s.table(collection), field+"-index", field, placeholders)

	params := make([]types.AttributeValue, 0, len(values))
	for _, v := range values {
		params = append(params, &types.AttributeValueMemberS{Value: v})
	}

	seen := make(map[string]struct{})
	var found []string
	var next *string
	for {
		out, err := s.client.ExecuteStatement(ctx, &dynamodb.ExecuteStatementInput{
			Statement:  aws.String(statement),
			Parameters: params,
			NextToken:  next,
		})
		if err != nil {
			return nil, fmt.Errorf("query existing %s.%s: %w", collection, field, withAPICode(err))
		}

		for _, item := range out.Items {
			var v string
			if err := attributevalue.Unmarshal(item[field], &v); err != nil {
				return nil, fmt.Errorf("decode %s: %w", field, err)
			}
			if _, dup := seen[v]; !dup {
				seen[v] = struct{}{}
				found = append(found, v)
			}
		}

		if out.NextToken == nil {
			break
		}
		next = out.NextToken
	}
	return found, nil
}

// marshalRecord превращает запись в item DynamoDB. JSON хранится строкой,
// время - в RFC3339.
func marshalRecord(op Operation) (map[string]types.AttributeValue, error) {
	plain := make(map[string]any, len(op.Record)+1)
	for k, v := range op.Record {
		switch val := v.(type) {
		case json.RawMessage:
			plain[k] = string(val)
		case time.Time:
			plain[k] = val.UTC().Format(time.RFC3339)
		default:
			plain[k] = v
		}
	}
	plain[KeyField] = op.Key

	av, err := attributevalue.MarshalMap(plain)
	if err != nil {
		return nil, fmt.Errorf("invalid argument: marshal %s record %s: %w", op.Collection, op.Key, err)
	}
	return av, nil
}

// apiCodeError добавляет к ошибке AWS её код.
type apiCodeError struct {
	code string
	err  error
}

func (e *apiCodeError) Error() string { return e.code + ": " + e.err.Error() }
func (e *apiCodeError) Unwrap() error { return e.err }

func withAPICode(err error) error {
	// Отмена транзакции: причины по элементам несут настоящий код.
	var cancelled *types.TransactionCanceledException
	if errors.As(err, &cancelled) {
		for _, r := range cancelled.CancellationReasons {
			if r.Code != nil && *r.Code != "None" {
				return &apiCodeError{code: *r.Code, err: err}
			}
		}
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || strings.Contains(err.Error(), apiErr.ErrorCode()) {
		return err
	}
	return &apiCodeError{code: apiErr.ErrorCode(), err: err}
}
