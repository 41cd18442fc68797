/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-openapi/strfmt"

	"github.com/suparena/pagecache/models"
)

const (
	metaSK       = "META"
	recordPrefix = "REC#"
	keysPrefix   = "KEY#"
)

func metaPK(collection string) string {
	return "COLL#" + collection
}

func generationPK(collection string, gen int) string {
	return fmt.Sprintf("COLL#%s#GEN#%d", collection, gen)
}

func recordSK(id int) string {
	return fmt.Sprintf("%s%010d", recordPrefix, id)
}

func keysSK(id int) string {
	return fmt.Sprintf("%s%010d", keysPrefix, id)
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func numberValue(n int) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.Itoa(n)}
}

type metaItem struct {
	PK  string `dynamodbav:"PK"`
	SK  string `dynamodbav:"SK"`
	Gen int    `dynamodbav:"Gen"`
}

type attributeItem struct {
	Name  string `dynamodbav:"Name"`
	Value int    `dynamodbav:"Value"`
}

type recordItem struct {
	PK         string          `dynamodbav:"PK"`
	SK         string          `dynamodbav:"SK"`
	EntityType string          `dynamodbav:"EntityType"`
	ID         int             `dynamodbav:"ID"`
	Name       string          `dynamodbav:"Name"`
	ImageRef   string          `dynamodbav:"ImageRef,omitempty"`
	Tags       []string        `dynamodbav:"Tags"`
	Height     int             `dynamodbav:"Height"`
	Weight     int             `dynamodbav:"Weight"`
	Attributes []attributeItem `dynamodbav:"Attributes"`
	FetchedAt  string          `dynamodbav:"FetchedAt,omitempty"`
}

type keysItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	RecordID   int    `dynamodbav:"RecordID"`
	PrevKey    *int   `dynamodbav:"PrevKey,omitempty"`
	NextKey    *int   `dynamodbav:"NextKey,omitempty"`
}

func marshalRecord(pk string, r models.Record) (map[string]types.AttributeValue, error) {
	item := recordItem{
		PK:         pk,
		SK:         recordSK(r.ID),
		EntityType: "Record",
		ID:         r.ID,
		Name:       r.Name,
		ImageRef:   r.ImageRef,
		Tags:       r.Tags,
		Height:     r.Height,
		Weight:     r.Weight,
	}
	for _, a := range r.Attributes {
		item.Attributes = append(item.Attributes, attributeItem{Name: a.Name, Value: a.Value})
	}
	if t := time.Time(r.FetchedAt); !t.IsZero() {
		item.FetchedAt = t.UTC().Format(time.RFC3339Nano)
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record %d: %w", r.ID, err)
	}
	return av, nil
}

func unmarshalRecord(av map[string]types.AttributeValue) (models.Record, error) {
	var item recordItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return models.Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	r := models.Record{
		ID:       item.ID,
		Name:     item.Name,
		ImageRef: item.ImageRef,
		Tags:     item.Tags,
		Height:   item.Height,
		Weight:   item.Weight,
	}
	for _, a := range item.Attributes {
		r.Attributes = append(r.Attributes, models.Attribute{Name: a.Name, Value: a.Value})
	}
	if item.FetchedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, item.FetchedAt)
		if err != nil {
			return models.Record{}, fmt.Errorf("failed to parse FetchedAt of record %d: %w", item.ID, err)
		}
		r.FetchedAt = strfmt.DateTime(t)
	}
	return r, nil
}

func marshalKeys(pk string, k models.RemoteKeys) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(keysItem{
		PK:         pk,
		SK:         keysSK(k.RecordID),
		EntityType: "RemoteKeys",
		RecordID:   k.RecordID,
		PrevKey:    k.PrevKey,
		NextKey:    k.NextKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal remote keys %d: %w", k.RecordID, err)
	}
	return av, nil
}

func unmarshalKeys(av map[string]types.AttributeValue) (models.RemoteKeys, error) {
	var item keysItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return models.RemoteKeys{}, fmt.Errorf("failed to unmarshal remote keys: %w", err)
	}
	return models.RemoteKeys{RecordID: item.RecordID, PrevKey: item.PrevKey, NextKey: item.NextKey}, nil
}
