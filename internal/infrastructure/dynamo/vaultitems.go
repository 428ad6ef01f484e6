package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-vault-api/internal/domain"
)

// VaultItemRepo provides typed DynamoDB operations for the vault items table.
// Ciphertext blobs are not stored here; items carry only metadata and the
// object-store key.
type VaultItemRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewVaultItemRepo(client *dynamodb.Client, tableName string) *VaultItemRepo {
	return &VaultItemRepo{client: client, tableName: tableName}
}

func (r *VaultItemRepo) Put(ctx context.Context, v *domain.VaultItem) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal vault item: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *VaultItemRepo) Get(ctx context.Context, itemID string) (*domain.VaultItem, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("item_id", itemID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("vault item not found: %w", domain.ErrNotFound)
	}
	var v domain.VaultItem
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListByUser returns the user's vault items via the user_id GSI, filtered on
// the soft-delete flag.
func (r *VaultItemRepo) ListByUser(ctx context.Context, userID string, deleted bool) ([]domain.VaultItem, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-index"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		FilterExpression:       aws.String("soft_deleted = :sd"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
			":sd":  &types.AttributeValueMemberBOOL{Value: deleted},
		},
	})
	if err != nil {
		return nil, err
	}
	var items []domain.VaultItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *VaultItemRepo) Update(ctx context.Context, itemID string, updates map[string]interface{}) error {
	updates[fieldUpdatedAt] = time.Now().UTC().Format(time.RFC3339)
	expr, names, values, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("item_id", itemID),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}

func (r *VaultItemRepo) SetSoftDeleted(ctx context.Context, itemID string, deleted bool) error {
	return r.Update(ctx, itemID, map[string]interface{}{fieldSoftDeleted: deleted})
}

// Delete removes the metadata record permanently.
func (r *VaultItemRepo) Delete(ctx context.Context, itemID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("item_id", itemID),
	})
	return err
}

// TouchLastAccessed stamps the item without bumping updated_at, so reads do
// not masquerade as edits.
func (r *VaultItemRepo) TouchLastAccessed(ctx context.Context, itemID string, at time.Time) error {
	expr, names, values, err := buildUpdateExpr(map[string]interface{}{
		fieldLastAccessedAt: at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("item_id", itemID),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}
