/*
Package models defines the data structures shared by every pagecache component.

Key Types:

Record:
The canonical, fully-resolved entity. A later fetch for the same ID replaces
the stored record as a whole:

	rec := models.Record{
	    ID:       25,
	    Name:     "pikachu",
	    ImageRef: "https://example.org/artwork/25.png",
	    Tags:     []string{"electric"},
	    Height:   4,
	    Weight:   60,
	    Attributes: []models.Attribute{
	        {Name: "hp", Value: 35},
	        {Name: "speed", Value: 90},
	    },
	}

Summary and PageResult:
What the list endpoint returns for one page. Summaries are never persisted;
they only drive detail resolution.

RemoteKeys:
One ledger row per cached record, holding the remote page positions adjacent
to the page the record came from. A nil PrevKey means "first page", a nil
NextKey means "last page".

Wire codec:
Stores that only have flat columns persist Tags and Attributes as JSON using
a fixed shape:

	tags:       ["grass","poison"]
	attributes: [{"name":"hp","value":45},{"name":"attack","value":49}]
*/
package models
