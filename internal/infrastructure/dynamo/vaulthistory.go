package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-vault-api/internal/domain"
)

// VaultHistoryRepo stores the append-only audit trail for vault items.
// PK: item_id, SK: history_id (ULIDs sort by creation time, so a query in
// descending key order is newest-first).
type VaultHistoryRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewVaultHistoryRepo(client *dynamodb.Client, tableName string) *VaultHistoryRepo {
	return &VaultHistoryRepo{client: client, tableName: tableName}
}

func (r *VaultHistoryRepo) Put(ctx context.Context, h *domain.VaultItemHistory) error {
	item, err := attributevalue.MarshalMap(h)
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// ListByItem returns the item's history, newest first.
func (r *VaultHistoryRepo) ListByItem(ctx context.Context, itemID string) ([]domain.VaultItemHistory, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("item_id = :iid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":iid": &types.AttributeValueMemberS{Value: itemID},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, err
	}
	var records []domain.VaultItemHistory
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &records); err != nil {
		return nil, err
	}
	return records, nil
}
