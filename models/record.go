/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package models

import (
	"slices"
	"strings"

	"github.com/go-openapi/strfmt"
)

// Record is a fully-resolved collection entry.
type Record struct {
	// ID is the stable remote identity.
	ID int `json:"id" yaml:"id"`
	// Name is the display name. Remote lookups by name use its lower-cased form.
	Name string `json:"name" yaml:"name"`
	// ImageRef points at the record's artwork.
	ImageRef string `json:"imageRef" yaml:"imageRef"`
	// Tags are the category tags (types) of the record, in remote order.
	Tags []string `json:"tags" yaml:"tags"`
	// Height is stored as attr1, in decimetres.
	Height int `json:"height" yaml:"height"`
	// Weight is stored as attr2, in hectograms.
	Weight int `json:"weight" yaml:"weight"`
	// Attributes are the named numeric attributes, in remote order.
	Attributes []Attribute `json:"attributes" yaml:"attributes"`
	// FetchedAt is when the record was resolved from the remote source.
	FetchedAt strfmt.DateTime `json:"fetchedAt" yaml:"fetchedAt"`
}

// Attribute is one named numeric attribute of a record.
type Attribute struct {
	Name  string `json:"name" yaml:"name"`
	Value int    `json:"value" yaml:"value"`
}

// HeightMeters returns the height in metres.
func (r Record) HeightMeters() float64 {
	return float64(r.Height) / 10
}

// WeightKg returns the weight in kilograms.
func (r Record) WeightKg() float64 {
	return float64(r.Weight) / 10
}

// HasAnyTag reports whether the record carries at least one of tags.
// An empty tag list matches every record.
func (r Record) HasAnyTag(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range r.Tags {
		if slices.Contains(tags, t) {
			return true
		}
	}
	return false
}

// Attribute returns the value of the named attribute.
func (r Record) Attribute(name string) (int, bool) {
	for _, a := range r.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return 0, false
}

var attributeDisplayNames = map[string]string{
	"hp":              "HP",
	"attack":          "Attack",
	"defense":         "Defense",
	"special-attack":  "Sp. Atk",
	"special-defense": "Sp. Def",
	"speed":           "Speed",
}

// DisplayName returns a human readable label for the attribute.
func (a Attribute) DisplayName() string {
	if name, ok := attributeDisplayNames[a.Name]; ok {
		return name
	}
	if a.Name == "" {
		return ""
	}
	return strings.ToUpper(a.Name[:1]) + a.Name[1:]
}

// FilterByTags returns the records having at least one of tags, preserving order.
func FilterByTags(records []Record, tags []string) []Record {
	if len(tags) == 0 {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.HasAnyTag(tags) {
			out = append(out, r)
		}
	}
	return out
}
