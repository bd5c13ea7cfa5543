package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DynamoStore implements DocumentStore on a single DynamoDB table.
// Key layout: pk = "<COLLECTION>#<id>", sk = "DOC". GSI1 partitions by
// collection so Query can fetch a whole collection.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// Attributes reserved by the key layout; everything else is document data.
var reservedAttrs = map[string]bool{
	"pk":         true,
	"sk":         true,
	"gsi1pk":     true,
	"doc_id":     true,
	"updated_at": true,
}

func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if endpoint != "" {
		// DynamoDB Local
		return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		}), nil
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func dynamoPK(collection, id string) string {
	return collection + "#" + id
}

func (ds *DynamoStore) key(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: dynamoPK(collection, id)},
		"sk": &types.AttributeValueMemberS{Value: "DOC"},
	}
}

// marshalItem flattens a document body into a DynamoDB item alongside
// the key attributes.
func (ds *DynamoStore) marshalItem(collection, id string, doc any, now time.Time) (map[string]types.AttributeValue, error) {
	body, err := toBody(doc, now)
	if err != nil {
		return nil, err
	}

	item, err := attributevalue.MarshalMap(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	item["pk"] = &types.AttributeValueMemberS{Value: dynamoPK(collection, id)}
	item["sk"] = &types.AttributeValueMemberS{Value: "DOC"}
	item["gsi1pk"] = &types.AttributeValueMemberS{Value: collection}
	item["doc_id"] = &types.AttributeValueMemberS{Value: id}
	item["updated_at"] = &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)}
	return item, nil
}

// unmarshalItem strips the key attributes and returns the document body.
func unmarshalItem(item map[string]types.AttributeValue) (document, error) {
	var body map[string]any
	if err := attributevalue.UnmarshalMap(item, &body); err != nil {
		return document{}, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	var id string
	if v, ok := body["doc_id"].(string); ok {
		id = v
	}
	for attr := range reservedAttrs {
		delete(body, attr)
	}
	return document{id: id, data: body}, nil
}

func (ds *DynamoStore) Get(ctx context.Context, collection, id string, out any) error {
	result, err := ds.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(ds.tableName),
		Key:            ds.key(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	if len(result.Item) == 0 {
		return ErrNotFound
	}

	doc, err := unmarshalItem(result.Item)
	if err != nil {
		return err
	}
	return decodeDoc(id, doc.data, out)
}

func (ds *DynamoStore) Set(ctx context.Context, collection, id string, doc any) error {
	item, err := ds.marshalItem(collection, id, doc, time.Now())
	if err != nil {
		return err
	}

	_, err = ds.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(ds.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (ds *DynamoStore) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	update, err := ds.buildUpdate(collection, id, fields, time.Now())
	if err != nil {
		return err
	}

	_, err = ds.client.UpdateItem(ctx, update)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	return nil
}

// buildUpdate produces a field-level UpdateItem: only the named fields
// are written, and the condition guards against upserting a missing
// document.
func (ds *DynamoStore) buildUpdate(collection, id string, fields map[string]any, now time.Time) (*dynamodb.UpdateItemInput, error) {
	patch, err := toBody(resolveTimestamps(fields, now), now)
	if err != nil {
		return nil, err
	}
	patch["updated_at"] = now.UTC().Format(time.RFC3339Nano)

	expr := "SET"
	names := make(map[string]string, len(patch))
	values := make(map[string]types.AttributeValue, len(patch))
	i := 0
	for field, value := range patch {
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field %s: %w", field, err)
		}
		namePh := fmt.Sprintf("#f%d", i)
		valuePh := fmt.Sprintf(":v%d", i)
		if i > 0 {
			expr += ","
		}
		expr += fmt.Sprintf(" %s = %s", namePh, valuePh)
		names[namePh] = field
		values[valuePh] = av
		i++
	}

	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(ds.tableName),
		Key:                       ds.key(collection, id),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(pk)"),
	}, nil
}

func (ds *DynamoStore) Create(ctx context.Context, collection string, doc any) (string, error) {
	id := uuid.New().String()
	item, err := ds.marshalItem(collection, id, doc, time.Now())
	if err != nil {
		return "", err
	}

	_, err = ds.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(ds.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create document in %s: %w", collection, err)
	}
	return id, nil
}

// Query fetches the collection partition via GSI1 and evaluates filters,
// ordering and limit client-side. Collections here are per-user sized,
// so the partition fetch stays small.
func (ds *DynamoStore) Query(ctx context.Context, collection string, q Query, out any) error {
	result, err := ds.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(ds.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("gsi1pk = :c"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: collection},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", collection, err)
	}

	docs := make([]document, 0, len(result.Items))
	for _, item := range result.Items {
		doc, err := unmarshalItem(item)
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return decodeDocs(applyQuery(docs, q), out)
}

func (ds *DynamoStore) Delete(ctx context.Context, collection, id string) error {
	_, err := ds.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(ds.tableName),
		Key:                 ds.key(collection, id),
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Transact maps ops onto a single TransactWriteItems call, so either all
// writes commit or none do.
func (ds *DynamoStore) Transact(ctx context.Context, ops []Op) error {
	now := time.Now()

	items := make([]types.TransactWriteItem, 0, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			item, err := ds.marshalItem(op.Collection, op.ID, resolveTimestamps(op.Doc, now), now)
			if err != nil {
				return err
			}
			items = append(items, types.TransactWriteItem{
				Put: &types.Put{
					TableName: aws.String(ds.tableName),
					Item:      item,
				},
			})
		case OpUpdate:
			update, err := ds.buildUpdate(op.Collection, op.ID, op.Fields, now)
			if err != nil {
				return err
			}
			items = append(items, types.TransactWriteItem{
				Update: &types.Update{
					TableName:                 update.TableName,
					Key:                       update.Key,
					UpdateExpression:          update.UpdateExpression,
					ExpressionAttributeNames:  update.ExpressionAttributeNames,
					ExpressionAttributeValues: update.ExpressionAttributeValues,
					ConditionExpression:       update.ConditionExpression,
				},
			})
		case OpDelete:
			items = append(items, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName: aws.String(ds.tableName),
					Key:       ds.key(op.Collection, op.ID),
				},
			})
		}
	}

	_, err := ds.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}
