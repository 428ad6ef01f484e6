package dynamo

import (
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// strKey builds a DynamoDB primary key map with a single string attribute.
func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

// buildUpdateExpr converts a map of field->value into a DynamoDB SET expression.
func buildUpdateExpr(updates map[string]interface{}) (expr string, names map[string]string, values map[string]types.AttributeValue, err error) {
	if len(updates) == 0 {
		return "", nil, nil, fmt.Errorf("no fields to update")
	}
	return buildApplyExpr(updates, nil)
}

// buildApplyExpr builds a combined SET + REMOVE update expression. Either
// part may be empty, but not both. Fields are processed in sorted order so
// the expression is deterministic, and name placeholders are shared between
// the two clauses so a field can never appear twice.
func buildApplyExpr(set map[string]interface{}, remove []string) (expr string, names map[string]string, values map[string]types.AttributeValue, err error) {
	if len(set) == 0 && len(remove) == 0 {
		return "", nil, nil, fmt.Errorf("no fields to apply")
	}
	names = make(map[string]string)
	values = make(map[string]types.AttributeValue)

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	i := 0
	if len(keys) > 0 {
		expr = "SET "
		for j, k := range keys {
			nameKey := fmt.Sprintf("#f%d", i)
			valueKey := fmt.Sprintf(":v%d", i)
			names[nameKey] = k
			av, mErr := attributevalue.Marshal(set[k])
			if mErr != nil {
				return "", nil, nil, fmt.Errorf("marshal field %s: %w", k, mErr)
			}
			values[valueKey] = av
			if j > 0 {
				expr += ", "
			}
			expr += fmt.Sprintf("%s = %s", nameKey, valueKey)
			i++
		}
	}
	if len(remove) > 0 {
		if expr != "" {
			expr += " "
		}
		expr += "REMOVE "
		for j, k := range remove {
			nameKey := fmt.Sprintf("#f%d", i)
			names[nameKey] = k
			if j > 0 {
				expr += ", "
			}
			expr += nameKey
			i++
		}
	}
	return expr, names, values, nil
}
