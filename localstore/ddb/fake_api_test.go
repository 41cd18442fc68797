/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeAPI is an in-memory table understanding the expressions Store issues
type fakeAPI struct {
	mu    sync.Mutex
	items map[string]map[string]map[string]types.AttributeValue

	queryErrors   []error
	transactCalls int
	updateCalls   int

	// onMetaRead runs after every read of a meta item, outside mu
	onMetaRead func()
}

var _ API = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: make(map[string]map[string]map[string]types.AttributeValue)}
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

func (f *fakeAPI) lookup(key map[string]types.AttributeValue) map[string]types.AttributeValue {
	return f.items[str(key["PK"])][str(key["SK"])]
}

func (f *fakeAPI) put(item map[string]types.AttributeValue) {
	pk, sk := str(item["PK"]), str(item["SK"])
	if f.items[pk] == nil {
		f.items[pk] = make(map[string]map[string]types.AttributeValue)
	}
	f.items[pk][sk] = maps.Clone(item)
}

func (f *fakeAPI) delete(key map[string]types.AttributeValue) {
	pk := str(key["PK"])
	delete(f.items[pk], str(key["SK"]))
	if len(f.items[pk]) == 0 {
		delete(f.items, pk)
	}
}

func (f *fakeAPI) genMatches(key map[string]types.AttributeValue, values map[string]types.AttributeValue) bool {
	meta := f.lookup(key)
	return meta != nil && str(meta["Gen"]) == str(values[":cur"])
}

func (f *fakeAPI) GetItem(ctx context.Context, in *sdk.GetItemInput, _ ...func(*sdk.Options)) (*sdk.GetItemOutput, error) {
	f.mu.Lock()
	item := maps.Clone(f.lookup(in.Key))
	hook := f.onMetaRead
	f.mu.Unlock()

	if hook != nil && str(in.Key["SK"]) == metaSK {
		hook()
	}
	return &sdk.GetItemOutput{Item: item}, nil
}

func (f *fakeAPI) PutItem(ctx context.Context, in *sdk.PutItemInput, _ ...func(*sdk.Options)) (*sdk.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if aws.ToString(in.ConditionExpression) == "attribute_not_exists(PK)" && f.lookup(in.Item) != nil {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("item exists")}
	}
	f.put(in.Item)
	return &sdk.PutItemOutput{}, nil
}

func (f *fakeAPI) UpdateItem(ctx context.Context, in *sdk.UpdateItemInput, _ ...func(*sdk.Options)) (*sdk.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++

	if aws.ToString(in.UpdateExpression) != "SET Gen = :next" {
		return nil, fmt.Errorf("fake: unsupported update %q", aws.ToString(in.UpdateExpression))
	}
	if !f.genMatches(in.Key, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("generation moved")}
	}
	meta := maps.Clone(f.lookup(in.Key))
	meta["Gen"] = in.ExpressionAttributeValues[":next"]
	f.put(meta)
	return &sdk.UpdateItemOutput{}, nil
}

func (f *fakeAPI) Query(ctx context.Context, in *sdk.QueryInput, _ ...func(*sdk.Options)) (*sdk.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queryErrors) > 0 {
		err := f.queryErrors[0]
		f.queryErrors = f.queryErrors[1:]
		return nil, err
	}

	partition := f.items[str(in.ExpressionAttributeValues[":pk"])]
	prefix := str(in.ExpressionAttributeValues[":prefix"])

	out := &sdk.QueryOutput{}
	for _, sk := range slices.Sorted(maps.Keys(partition)) {
		if !strings.HasPrefix(sk, prefix) {
			continue
		}
		out.Count++
		if in.Select != types.SelectCount {
			out.Items = append(out.Items, maps.Clone(partition[sk]))
		}
	}
	return out, nil
}

func (f *fakeAPI) TransactWriteItems(ctx context.Context, in *sdk.TransactWriteItemsInput, _ ...func(*sdk.Options)) (*sdk.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactCalls++

	if len(in.TransactItems) > maxTransactItems {
		return nil, fmt.Errorf("fake: %d transact items exceeds limit", len(in.TransactItems))
	}
	for _, item := range in.TransactItems {
		if cc := item.ConditionCheck; cc != nil && !f.genMatches(cc.Key, cc.ExpressionAttributeValues) {
			return nil, &types.TransactionCanceledException{
				Message: aws.String("transaction cancelled"),
				CancellationReasons: []types.CancellationReason{
					{Code: aws.String("ConditionalCheckFailed")},
				},
			}
		}
	}
	for _, item := range in.TransactItems {
		if item.Put != nil {
			f.put(item.Put.Item)
		}
	}
	return &sdk.TransactWriteItemsOutput{}, nil
}

func (f *fakeAPI) BatchWriteItem(ctx context.Context, in *sdk.BatchWriteItemInput, _ ...func(*sdk.Options)) (*sdk.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, requests := range in.RequestItems {
		if len(requests) > batchWriteLimit {
			return nil, fmt.Errorf("fake: %d batch requests exceeds limit", len(requests))
		}
		for _, r := range requests {
			switch {
			case r.PutRequest != nil:
				f.put(r.PutRequest.Item)
			case r.DeleteRequest != nil:
				f.delete(r.DeleteRequest.Key)
			}
		}
	}
	return &sdk.BatchWriteItemOutput{}, nil
}

// partitionSize returns the number of items stored under pk
func (f *fakeAPI) partitionSize(pk string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items[pk])
}
