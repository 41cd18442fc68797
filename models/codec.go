/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package models

import (
	"encoding/json"
	"fmt"
)

// EncodeTags encodes tags as a JSON array of strings. A nil slice encodes as "[]".
func EncodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(data), nil
}

// DecodeTags decodes the output of EncodeTags. An empty string decodes to an empty list.
func DecodeTags(s string) ([]string, error) {
	tags := []string{}
	if s == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}

// EncodeAttributes encodes attributes as an ordered JSON list of {name, value} pairs.
func EncodeAttributes(attrs []Attribute) (string, error) {
	if attrs == nil {
		attrs = []Attribute{}
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("encode attributes: %w", err)
	}
	return string(data), nil
}

// DecodeAttributes decodes the output of EncodeAttributes.
func DecodeAttributes(s string) ([]Attribute, error) {
	attrs := []Attribute{}
	if s == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(s), &attrs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return attrs, nil
}
