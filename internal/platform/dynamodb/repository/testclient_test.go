package repository

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TestClient is an in-memory implementation of the DynamoDB client interface for testing.
// It understands the key and condition expressions the repositories build.
type TestClient struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	// pageSize splits query results into pages when no Limit is given
	pageSize int
	// failWith is returned by the next call instead of executing it
	failWith error
}

// NewTestClient creates a new test client with an empty items map
func NewTestClient() *TestClient {
	return &TestClient{
		items: make(map[string]map[string]types.AttributeValue),
	}
}

func itemID(item map[string]types.AttributeValue) string {
	return str(item["PK"]) + "|" + str(item["SK"])
}

func str(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	}
	return ""
}

func (c *TestClient) takeFailure() error {
	err := c.failWith
	c.failWith = nil
	return err
}

// GetItem retrieves an item from the in-memory store
func (c *TestClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure(); err != nil {
		return nil, err
	}

	if item, exists := c.items[itemID(params.Key)]; exists {
		return &dynamodb.GetItemOutput{Item: item}, nil
	}
	return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{}}, nil
}

// PutItem adds or updates an item in the in-memory store
func (c *TestClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure(); err != nil {
		return nil, err
	}

	key := itemID(params.Item)
	if !c.conditionHolds(key, params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	c.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

// DeleteItem removes an item from the in-memory store
func (c *TestClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure(); err != nil {
		return nil, err
	}

	delete(c.items, itemID(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

// Query returns the items matching the key condition, sorted by the sort key
func (c *TestClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure(); err != nil {
		return nil, err
	}

	clauses, err := parseClauses(aws.ToString(params.KeyConditionExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	sortAttr := "SK"
	if aws.ToString(params.IndexName) == gsi1 {
		sortAttr = "GSI1SK"
	}

	var matched []map[string]types.AttributeValue
	for _, item := range c.items {
		if matchesAll(item, clauses) {
			matched = append(matched, item)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if str(matched[i][sortAttr]) == str(matched[j][sortAttr]) {
			return itemID(matched[i]) < itemID(matched[j])
		}
		return str(matched[i][sortAttr]) < str(matched[j][sortAttr])
	})
	if params.ScanIndexForward != nil && !*params.ScanIndexForward {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	if params.ExclusiveStartKey != nil {
		start := itemID(params.ExclusiveStartKey)
		for i, item := range matched {
			if itemID(item) == start {
				matched = matched[i+1:]
				break
			}
		}
	}

	limit := c.pageSize
	if params.Limit != nil {
		limit = int(*params.Limit)
	}
	out := &dynamodb.QueryOutput{Items: matched}
	if limit > 0 && len(matched) > limit {
		out.Items = matched[:limit]
		last := out.Items[limit-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{"PK": last["PK"], "SK": last["SK"]}
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

// TransactWriteItems checks every condition first and applies the writes only when all hold
func (c *TestClient) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure(); err != nil {
		return nil, err
	}

	for i, w := range params.TransactItems {
		var ok bool
		switch {
		case w.Put != nil:
			ok = c.conditionHolds(itemID(w.Put.Item), w.Put.ConditionExpression, w.Put.ExpressionAttributeNames, w.Put.ExpressionAttributeValues)
		case w.Delete != nil:
			ok = c.conditionHolds(itemID(w.Delete.Key), w.Delete.ConditionExpression, w.Delete.ExpressionAttributeNames, w.Delete.ExpressionAttributeValues)
		default:
			return nil, fmt.Errorf("unsupported transact item %d", i)
		}
		if !ok {
			return nil, &types.TransactionCanceledException{
				Message: aws.String(fmt.Sprintf("Transaction cancelled, item %d failed its condition", i)),
			}
		}
	}

	for _, w := range params.TransactItems {
		if w.Put != nil {
			c.items[itemID(w.Put.Item)] = w.Put.Item
		} else {
			delete(c.items, itemID(w.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// conditionHolds evaluates a condition expression against the stored item; callers hold mu
func (c *TestClient) conditionHolds(key string, expr *string, names map[string]string, values map[string]types.AttributeValue) bool {
	existing, exists := c.items[key]
	switch aws.ToString(expr) {
	case "":
		return true
	case "attribute_not_exists(PK)":
		return !exists
	case "attribute_exists(PK)":
		return exists
	}
	clauses, err := parseClauses(*expr, names, values)
	if err != nil || !exists {
		return false
	}
	return matchesAll(existing, clauses)
}

type clause struct {
	attr  string
	op    string
	value string
}

var (
	beginsWithRe = regexp.MustCompile(`begins_with\s*\(\s*(#\w+)\s*,\s*(:\w+)\s*\)`)
	compareRe    = regexp.MustCompile(`(#\w+)\s*(<=|>=|=)\s*(:\w+)`)
)

// parseClauses reads the conjunctions produced by the expression builder
func parseClauses(expr string, names map[string]string, values map[string]types.AttributeValue) ([]clause, error) {
	var clauses []clause
	for _, part := range strings.Split(expr, " AND ") {
		if m := beginsWithRe.FindStringSubmatch(part); m != nil {
			clauses = append(clauses, clause{attr: names[m[1]], op: "begins_with", value: str(values[m[2]])})
			continue
		}
		if m := compareRe.FindStringSubmatch(part); m != nil {
			clauses = append(clauses, clause{attr: names[m[1]], op: m[2], value: str(values[m[3]])})
			continue
		}
		return nil, fmt.Errorf("unsupported expression %q", part)
	}
	return clauses, nil
}

func matchesAll(item map[string]types.AttributeValue, clauses []clause) bool {
	for _, cl := range clauses {
		av, ok := item[cl.attr]
		if !ok {
			return false
		}
		actual := str(av)
		switch cl.op {
		case "=":
			if actual != cl.value {
				return false
			}
		case "<=":
			if actual > cl.value {
				return false
			}
		case ">=":
			if actual < cl.value {
				return false
			}
		case "begins_with":
			if !strings.HasPrefix(actual, cl.value) {
				return false
			}
		}
	}
	return true
}

func (c *TestClient) count(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n
}
