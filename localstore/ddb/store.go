/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/suparena/pagecache/config"
	"github.com/suparena/pagecache/errors"
	"github.com/suparena/pagecache/localstore"
	"github.com/suparena/pagecache/models"
)

// DriverName is the localstore driver name of this backend
const DriverName = "dynamodb"

const (
	// maxTransactItems is the TransactWriteItems limit; one slot is the Gen check.
	maxTransactItems = 100
	batchWriteLimit  = 25
	genCondition     = "Gen = :cur"

	// maxReadAttempts bounds how often a read restarts after Gen moved under it
	maxReadAttempts = 5
)

func init() {
	localstore.Register(DriverName, func(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (localstore.Store, error) {
		client, err := NewDynamoDBClient(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, err
		}
		return New(ctx, client, cfg.DynamoDB.Table, cfg.DynamoDB.Collection, WithLogger(logger))
	})
}

// Store implements localstore.Store on one DynamoDB table.
type Store struct {
	client       API
	table        string
	collection   string
	logger       *zap.Logger
	maxRetries   int
	retryBackoff time.Duration

	// txMu serialises writers of this process; other writers lose the Gen condition
	txMu sync.Mutex
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRetry sets the query retry policy (default: 3 retries, 100ms backoff)
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(s *Store) {
		s.maxRetries = maxRetries
		s.retryBackoff = backoff
	}
}

// New creates a Store for collection in table and makes sure its meta item exists.
func New(ctx context.Context, client API, table, collection string, opts ...Option) (*Store, error) {
	if table == "" {
		return nil, errors.NewValidationError("store.dynamodb.table", "must not be empty")
	}
	if collection == "" {
		collection = "default"
	}

	s := &Store{
		client:       client,
		table:        table,
		collection:   collection,
		logger:       zap.NewNop(),
		maxRetries:   3,
		retryBackoff: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	meta, err := attributevalue.MarshalMap(metaItem{PK: metaPK(collection), SK: metaSK, Gen: 0})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal meta item: %w", err)
	}
	_, err = client.PutItem(ctx, &sdk.PutItemInput{
		TableName:           aws.String(table),
		Item:                meta,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil && !isConditionFailure(err) {
		return nil, errors.NewStoreError("open", err)
	}

	s.logger.Debug("dynamodb store opened",
		zap.String("table", table),
		zap.String("collection", collection))
	return s, nil
}

// currentGeneration reads Gen with a consistent read
func (s *Store) currentGeneration(ctx context.Context) (int, error) {
	out, err := s.client.GetItem(ctx, &sdk.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(metaPK(s.collection), metaSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, err
	}
	if out.Item == nil {
		return 0, nil
	}

	var meta metaItem
	if err := attributevalue.UnmarshalMap(out.Item, &meta); err != nil {
		return 0, fmt.Errorf("failed to unmarshal meta item: %w", err)
	}
	return meta.Gen, nil
}

// queryPrefix runs a key-ordered query over one generation. An empty prefix
// selects the whole partition. visit returning false stops the walk.
func (s *Store) queryPrefix(ctx context.Context, gen int, prefix string, visit func(map[string]types.AttributeValue) (bool, error)) error {
	keyCond := "PK = :pk"
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: generationPK(s.collection, gen)},
	}
	if prefix != "" {
		keyCond += " AND begins_with(SK, :prefix)"
		values[":prefix"] = &types.AttributeValueMemberS{Value: prefix}
	}

	input := &sdk.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(true),
		ConsistentRead:            aws.Bool(true),
	}

	for {
		out, err := s.queryWithRetry(ctx, input)
		if err != nil {
			return err
		}
		for _, item := range out.Items {
			more, err := visit(item)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (s *Store) allRecords(ctx context.Context, gen int) ([]models.Record, error) {
	records := []models.Record{}
	err := s.queryPrefix(ctx, gen, recordPrefix, func(item map[string]types.AttributeValue) (bool, error) {
		r, err := unmarshalRecord(item)
		if err != nil {
			return false, err
		}
		records = append(records, r)
		return true, nil
	})
	return records, err
}

func (s *Store) allKeys(ctx context.Context, gen int) ([]models.RemoteKeys, error) {
	keys := []models.RemoteKeys{}
	err := s.queryPrefix(ctx, gen, keysPrefix, func(item map[string]types.AttributeValue) (bool, error) {
		k, err := unmarshalKeys(item)
		if err != nil {
			return false, err
		}
		keys = append(keys, k)
		return true, nil
	})
	return keys, err
}

func (s *Store) getItem(ctx context.Context, gen int, sk string) (map[string]types.AttributeValue, error) {
	out, err := s.client.GetItem(ctx, &sdk.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(generationPK(s.collection, gen), sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	return out.Item, nil
}

// readGeneration runs read against the published generation, then reads Gen
// again. A read that overlapped a flip is discarded and run again, so callers
// only ever see one complete generation.
func (s *Store) readGeneration(ctx context.Context, read func(gen int) error) error {
	for attempt := 1; ; attempt++ {
		gen, err := s.currentGeneration(ctx)
		if err != nil {
			return err
		}
		if err := read(gen); err != nil {
			return err
		}

		after, err := s.currentGeneration(ctx)
		if err != nil {
			return err
		}
		if after == gen {
			return nil
		}
		if attempt >= maxReadAttempts {
			return fmt.Errorf("generation moved from %d to %d on each of %d reads", gen, after, attempt)
		}
		s.logger.Debug("generation moved during read",
			zap.Int("read", gen),
			zap.Int("published", after),
			zap.Int("attempt", attempt))
	}
}

// Window returns up to limit records from position offset, skipping offset
// items of the key-ordered query.
func (s *Store) Window(ctx context.Context, offset, limit int) ([]models.Record, error) {
	if limit <= 0 {
		return []models.Record{}, nil
	}

	var records []models.Record
	err := s.readGeneration(ctx, func(gen int) error {
		records = []models.Record{}
		pos := 0
		return s.queryPrefix(ctx, gen, recordPrefix, func(item map[string]types.AttributeValue) (bool, error) {
			if pos++; pos <= offset {
				return true, nil
			}
			r, err := unmarshalRecord(item)
			if err != nil {
				return false, err
			}
			records = append(records, r)
			return len(records) < limit, nil
		})
	})
	if err != nil {
		return nil, errors.NewStoreError("window", err)
	}
	return records, nil
}

// Get returns the record for id, or nil when absent.
func (s *Store) Get(ctx context.Context, id int) (*models.Record, error) {
	var item map[string]types.AttributeValue
	err := s.readGeneration(ctx, func(gen int) error {
		var err error
		item, err = s.getItem(ctx, gen, recordSK(id))
		return err
	})
	if err != nil {
		return nil, errors.NewStoreError("get", err)
	}
	if item == nil {
		return nil, nil
	}

	r, err := unmarshalRecord(item)
	if err != nil {
		return nil, errors.NewStoreError("get", err)
	}
	return &r, nil
}

// SearchByNameOrID filters the current generation in memory; DynamoDB has no
// case-insensitive contains.
func (s *Store) SearchByNameOrID(ctx context.Context, text string) ([]models.Record, error) {
	match := localstore.Matcher(text)

	var results []models.Record
	err := s.readGeneration(ctx, func(gen int) error {
		results = []models.Record{}
		return s.queryPrefix(ctx, gen, recordPrefix, func(item map[string]types.AttributeValue) (bool, error) {
			r, err := unmarshalRecord(item)
			if err != nil {
				return false, err
			}
			if match(r) {
				results = append(results, r)
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, errors.NewStoreError("search", err)
	}
	return results, nil
}

// Count returns the number of records in the current generation.
func (s *Store) Count(ctx context.Context) (int, error) {
	total := 0
	err := s.readGeneration(ctx, func(gen int) error {
		total = 0
		input := &sdk.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: generationPK(s.collection, gen)},
				":prefix": &types.AttributeValueMemberS{Value: recordPrefix},
			},
			Select:         types.SelectCount,
			ConsistentRead: aws.Bool(true),
		}
		for {
			out, err := s.queryWithRetry(ctx, input)
			if err != nil {
				return err
			}
			total += int(out.Count)
			if len(out.LastEvaluatedKey) == 0 {
				return nil
			}
			input.ExclusiveStartKey = out.LastEvaluatedKey
		}
	})
	if err != nil {
		return 0, errors.NewStoreError("count", err)
	}
	return total, nil
}

// KeysFor returns the ledger row for id, or nil when absent.
func (s *Store) KeysFor(ctx context.Context, id int) (*models.RemoteKeys, error) {
	var item map[string]types.AttributeValue
	err := s.readGeneration(ctx, func(gen int) error {
		var err error
		item, err = s.getItem(ctx, gen, keysSK(id))
		return err
	})
	if err != nil {
		return nil, errors.NewStoreError("keys for", err)
	}
	if item == nil {
		return nil, nil
	}

	k, err := unmarshalKeys(item)
	if err != nil {
		return nil, errors.NewStoreError("keys for", err)
	}
	return &k, nil
}

// Upsert inserts or replaces one record.
func (s *Store) Upsert(ctx context.Context, record models.Record) error {
	return s.UpsertMany(ctx, []models.Record{record})
}

// UpsertMany inserts or replaces records atomically.
func (s *Store) UpsertMany(ctx context.Context, records []models.Record) error {
	return s.RunTransaction(ctx, func(ctx context.Context, w localstore.Writer) error {
		return w.UpsertMany(ctx, records)
	})
}

// Clear removes every record and ledger row.
func (s *Store) Clear(ctx context.Context) error {
	return s.RunTransaction(ctx, func(ctx context.Context, w localstore.Writer) error {
		return w.Clear(ctx)
	})
}

// UpsertKeysMany writes ledger rows atomically.
func (s *Store) UpsertKeysMany(ctx context.Context, keys []models.RemoteKeys) error {
	return s.RunTransaction(ctx, func(ctx context.Context, w localstore.Writer) error {
		return w.UpsertKeysMany(ctx, keys)
	})
}

// ClearKeys removes every ledger row.
func (s *Store) ClearKeys(ctx context.Context) error {
	return s.RunTransaction(ctx, func(ctx context.Context, w localstore.Writer) error {
		return w.ClearKeys(ctx)
	})
}

// RunTransaction buffers the writes of fn and commits them when fn returns nil.
// Nothing reaches the table before commit, so an error or panic in fn leaves
// the store unchanged.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, w localstore.Writer) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	gen, err := s.currentGeneration(ctx)
	if err != nil {
		return errors.NewStoreError("begin", err)
	}

	w := &txWriter{
		store:   s,
		gen:     gen,
		records: make(map[int]models.Record),
		keys:    make(map[int]models.RemoteKeys),
	}
	if err := fn(ctx, w); err != nil {
		return err
	}
	return w.commit(ctx)
}

// Close is a no-op; the DynamoDB client holds no connections to release.
func (s *Store) Close() error {
	return nil
}

// txWriter buffers the writes of one transaction
type txWriter struct {
	store       *Store
	gen         int
	cleared     bool
	keysCleared bool
	records     map[int]models.Record
	keys        map[int]models.RemoteKeys
}

func (w *txWriter) Upsert(ctx context.Context, record models.Record) error {
	return w.UpsertMany(ctx, []models.Record{record})
}

func (w *txWriter) UpsertMany(ctx context.Context, records []models.Record) error {
	for _, r := range records {
		w.records[r.ID] = r
	}
	return nil
}

func (w *txWriter) Clear(ctx context.Context) error {
	w.cleared = true
	w.keysCleared = true
	w.records = make(map[int]models.Record)
	w.keys = make(map[int]models.RemoteKeys)
	return nil
}

func (w *txWriter) UpsertKeysMany(ctx context.Context, keys []models.RemoteKeys) error {
	for _, k := range keys {
		if _, staged := w.records[k.RecordID]; staged {
			continue
		}
		if !w.cleared {
			item, err := w.store.getItem(ctx, w.gen, recordSK(k.RecordID))
			if err != nil {
				return errors.NewStoreError("upsert keys", err)
			}
			if item != nil {
				continue
			}
		}
		return errors.NewStoreError("upsert keys", fmt.Errorf("record %d does not exist", k.RecordID))
	}

	for _, k := range keys {
		w.keys[k.RecordID] = k
	}
	return nil
}

func (w *txWriter) ClearKeys(ctx context.Context) error {
	w.keysCleared = true
	w.keys = make(map[int]models.RemoteKeys)
	return nil
}

func (w *txWriter) commit(ctx context.Context) error {
	puts := len(w.records) + len(w.keys)
	if !w.cleared && !w.keysCleared && puts < maxTransactItems {
		return w.commitInPlace(ctx)
	}
	return w.commitGeneration(ctx)
}

// commitInPlace writes into the current generation with one TransactWriteItems call.
func (w *txWriter) commitInPlace(ctx context.Context) error {
	if len(w.records)+len(w.keys) == 0 {
		return nil
	}

	s := w.store
	pk := generationPK(s.collection, w.gen)
	items := []types.TransactWriteItem{{
		ConditionCheck: &types.ConditionCheck{
			TableName:           aws.String(s.table),
			Key:                 itemKey(metaPK(s.collection), metaSK),
			ConditionExpression: aws.String(genCondition),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":cur": numberValue(w.gen),
			},
		},
	}}

	puts, err := w.putItems(pk, w.sortedRecords(), w.sortedKeys())
	if err != nil {
		return errors.NewStoreError("commit", err)
	}
	for _, item := range puts {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(s.table), Item: item},
		})
	}

	s.logger.Debug("executing transaction",
		zap.Int("generation", w.gen),
		zap.Int("item_count", len(items)))

	if _, err := s.client.TransactWriteItems(ctx, &sdk.TransactWriteItemsInput{TransactItems: items}); err != nil {
		if isConditionFailure(err) {
			return errors.NewStoreError("commit", errors.NewConditionFailedError("commit", genCondition))
		}
		return errors.NewStoreError("commit", err)
	}
	return nil
}

// commitGeneration writes the full post-commit content into Gen+1 and flips Gen.
func (w *txWriter) commitGeneration(ctx context.Context) error {
	s := w.store
	next := w.gen + 1

	records := map[int]models.Record{}
	keys := map[int]models.RemoteKeys{}
	if !w.cleared {
		current, err := s.allRecords(ctx, w.gen)
		if err != nil {
			return errors.NewStoreError("commit", err)
		}
		for _, r := range current {
			records[r.ID] = r
		}
	}
	if !w.keysCleared {
		current, err := s.allKeys(ctx, w.gen)
		if err != nil {
			return errors.NewStoreError("commit", err)
		}
		for _, k := range current {
			keys[k.RecordID] = k
		}
	}
	maps.Copy(records, w.records)
	maps.Copy(keys, w.keys)

	// leftovers of an earlier failed flip
	if err := s.deleteGeneration(ctx, next); err != nil {
		return errors.NewStoreError("commit", err)
	}

	puts, err := w.putItems(generationPK(s.collection, next), sortedValues(records), sortedValues(keys))
	if err != nil {
		return errors.NewStoreError("commit", err)
	}
	requests := make([]types.WriteRequest, 0, len(puts))
	for _, item := range puts {
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	if err := s.batchWrite(ctx, requests); err != nil {
		return errors.NewStoreError("commit", err)
	}

	_, err = s.client.UpdateItem(ctx, &sdk.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 itemKey(metaPK(s.collection), metaSK),
		UpdateExpression:    aws.String("SET Gen = :next"),
		ConditionExpression: aws.String(genCondition),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cur":  numberValue(w.gen),
			":next": numberValue(next),
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			// next may be the winner's published partition now
			return errors.NewStoreError("commit", errors.NewConditionFailedError("commit", genCondition))
		}
		if cleanupErr := s.deleteGeneration(ctx, next); cleanupErr != nil {
			s.logger.Warn("failed to delete staged generation", zap.Int("generation", next), zap.Error(cleanupErr))
		}
		return errors.NewStoreError("commit", err)
	}

	s.logger.Debug("generation published",
		zap.Int("generation", next),
		zap.Int("records", len(records)),
		zap.Int("keys", len(keys)))

	// w.gen stays readable for readers that resolved Gen before the flip.
	// Readers still on the one before it restart when they read Gen again.
	if stale := w.gen - 1; stale >= 0 {
		if err := s.deleteGeneration(ctx, stale); err != nil {
			s.logger.Warn("failed to delete superseded generation", zap.Int("generation", stale), zap.Error(err))
		}
	}
	return nil
}

// putItems marshals records before keys, in identity order
func (w *txWriter) putItems(pk string, records []models.Record, keys []models.RemoteKeys) ([]map[string]types.AttributeValue, error) {
	items := make([]map[string]types.AttributeValue, 0, len(records)+len(keys))
	for _, r := range records {
		item, err := marshalRecord(pk, r)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	for _, k := range keys {
		item, err := marshalKeys(pk, k)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (w *txWriter) sortedRecords() []models.Record {
	return sortedValues(w.records)
}

func (w *txWriter) sortedKeys() []models.RemoteKeys {
	return sortedValues(w.keys)
}

func sortedValues[V any](m map[int]V) []V {
	ids := slices.Sorted(maps.Keys(m))
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

// deleteGeneration removes every item of one generation partition
func (s *Store) deleteGeneration(ctx context.Context, gen int) error {
	var requests []types.WriteRequest
	err := s.queryPrefix(ctx, gen, "", func(item map[string]types.AttributeValue) (bool, error) {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{
				"PK": item["PK"],
				"SK": item["SK"],
			}},
		})
		return true, nil
	})
	if err != nil {
		return err
	}
	return s.batchWrite(ctx, requests)
}

// batchWrite sends requests in chunks, resending unprocessed items
func (s *Store) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	for chunk := range slices.Chunk(requests, batchWriteLimit) {
		pending := chunk
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt > s.maxRetries {
				return fmt.Errorf("batch write: %d items unprocessed after %d retries", len(pending), s.maxRetries)
			}
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt) * s.retryBackoff):
				}
			}

			out, err := s.client.BatchWriteItem(ctx, &sdk.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{s.table: pending},
			})
			if err != nil {
				if isRetryableError(err) {
					continue
				}
				return err
			}
			pending = out.UnprocessedItems[s.table]
		}
	}
	return nil
}

// Generation returns the published generation
func (s *Store) Generation(ctx context.Context) (int, error) {
	gen, err := s.currentGeneration(ctx)
	if err != nil {
		return 0, errors.NewStoreError("generation", err)
	}
	return gen, nil
}
