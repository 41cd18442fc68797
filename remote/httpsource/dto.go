/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package httpsource

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/suparena/pagecache/models"
)

// listResponse is the body of GET /{collection}?limit&offset.
type listResponse struct {
	Count    int             `json:"count"`
	Next     *string         `json:"next"`
	Previous *string         `json:"previous"`
	Results  []namedResource `json:"results"`
}

type namedResource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// id extracts the identity from the resource locator, e.g. ".../pokemon/25/".
// It returns 0 when the locator does not end in a number.
func (n namedResource) id() int {
	trimmed := strings.TrimRight(n.URL, "/")
	idx := strings.LastIndex(trimmed, "/")
	id, err := strconv.Atoi(trimmed[idx+1:])
	if err != nil {
		return 0
	}
	return id
}

// detailResponse is the body of GET /{collection}/{id|name}.
type detailResponse struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Height int    `json:"height"`
	Weight int    `json:"weight"`
	Types  []struct {
		Slot int `json:"slot"`
		Type struct {
			Name string `json:"name"`
		} `json:"type"`
	} `json:"types"`
	Stats []struct {
		BaseStat int `json:"base_stat"`
		Stat     struct {
			Name string `json:"name"`
		} `json:"stat"`
	} `json:"stats"`
	Sprites struct {
		FrontDefault *string `json:"front_default"`
		Other        *struct {
			OfficialArtwork *struct {
				FrontDefault *string `json:"front_default"`
			} `json:"official-artwork"`
		} `json:"other"`
	} `json:"sprites"`
}

func (l *listResponse) toPage() *models.PageResult {
	page := &models.PageResult{
		Summaries: make([]models.Summary, 0, len(l.Results)),
		HasMore:   l.Next != nil,
		Total:     l.Count,
	}
	for _, r := range l.Results {
		page.Summaries = append(page.Summaries, models.Summary{ID: r.id(), Name: r.Name})
	}
	return page
}

func (d *detailResponse) toRecord(artworkBase string, fetchedAt time.Time) *models.Record {
	rec := &models.Record{
		ID:         d.ID,
		Name:       d.Name,
		ImageRef:   d.imageRef(artworkBase),
		Tags:       make([]string, 0, len(d.Types)),
		Height:     d.Height,
		Weight:     d.Weight,
		Attributes: make([]models.Attribute, 0, len(d.Stats)),
		FetchedAt:  strfmt.DateTime(fetchedAt.UTC()),
	}
	for _, t := range d.Types {
		rec.Tags = append(rec.Tags, t.Type.Name)
	}
	for _, s := range d.Stats {
		rec.Attributes = append(rec.Attributes, models.Attribute{Name: s.Stat.Name, Value: s.BaseStat})
	}
	return rec
}

// imageRef picks official artwork, then the default sprite, then the
// artwork URL derived from the identity.
func (d *detailResponse) imageRef(artworkBase string) string {
	var candidates []*string
	if d.Sprites.Other != nil && d.Sprites.Other.OfficialArtwork != nil {
		candidates = append(candidates, d.Sprites.Other.OfficialArtwork.FrontDefault)
	}
	candidates = append(candidates, d.Sprites.FrontDefault)

	for _, c := range candidates {
		if c != nil && *c != "" && strfmt.Default.Validates("uri", *c) {
			return *c
		}
	}
	return strings.TrimRight(artworkBase, "/") + "/" + strconv.Itoa(d.ID) + ".png"
}
