// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
)

// ExternalIDs holds external identifiers attached to a fetched paper.
type ExternalIDs struct {
	// DOI is the paper's DOI, when known.
	DOI string `json:"DOI,omitempty" yaml:"doi,omitempty"`
}

// Paper is a candidate reference fetched from a bibliographic source. The
// section and query fields record which article section the paper was
// fetched for and the query that found it.
type Paper struct {
	// Section is the article section the paper is a candidate for.
	Section string `json:"section" yaml:"section"`

	// Query is the search query that produced the paper.
	Query string `json:"query" yaml:"query"`

	// PaperID is the source's identifier for the paper.
	PaperID string `json:"paperId,omitempty" yaml:"paper_id,omitempty"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Abstract is the paper abstract.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Authors lists author display names in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Year is the publication year (0 if unknown).
	Year int `json:"year" yaml:"year"`

	// Venue is the journal or venue of publication.
	Venue string `json:"venue" yaml:"venue"`

	// URL is the source's landing page for the paper.
	URL string `json:"url" yaml:"url"`

	// OpenAccessPDF is a direct PDF link, when one exists.
	OpenAccessPDF string `json:"openAccessPdf,omitempty" yaml:"open_access_pdf,omitempty"`

	// ExternalIDs carries external identifiers (DOI).
	ExternalIDs ExternalIDs `json:"external_ids" yaml:"external_ids"`

	// CitationCount is the source-reported citation count.
	CitationCount int `json:"citationCount" yaml:"citation_count"`

	// Citation is the pre-formatted human-readable citation string.
	Citation string `json:"citation" yaml:"citation"`

	// ISSN is the publication venue's ISSN with hyphens stripped, kept
	// for the venue-quality filter. Not part of the interchange shape.
	ISSN string `json:"-" yaml:"-"`

	// Source names the fetch source that produced the paper.
	Source string `json:"-" yaml:"-"`
}

// FormatCitation builds the human-readable citation for the paper: up to
// three author names ("et al." beyond that), the quoted title, year, and
// venue, then a link. A non-DOI URL is preferred over the DOI; when both
// are absent no link is appended.
func (p Paper) FormatCitation() string {
	names := p.Authors
	if len(names) > 3 {
		names = names[:3]
	}
	authors := strings.Join(names, ", ")
	if len(p.Authors) > 3 {
		authors += " et al."
	}
	if authors == "" {
		authors = "Unknown"
	}

	year := "Unknown Year"
	if p.Year > 0 {
		year = fmt.Sprintf("%d", p.Year)
	}
	venue := p.Venue
	if venue == "" {
		venue = "Unknown Venue"
	}

	citation := fmt.Sprintf("%s. \"%s\" (%s). Published in %s.", authors, p.Title, year, venue)

	switch {
	case p.URL != "":
		citation += fmt.Sprintf(" Available at: %s.", p.URL)
	case p.ExternalIDs.DOI != "":
		citation += fmt.Sprintf(" DOI: %s.", p.ExternalIDs.DOI)
	}
	return citation
}

// ReferenceItem converts the paper into a reference item with the given
// number. An unknown year is left empty so the item passes the
// completeness check only when the source reported one.
func (p Paper) ReferenceItem(number int) ReferenceItem {
	names := p.Authors
	if len(names) > 3 {
		names = names[:3]
	}
	authors := strings.Join(names, ", ")
	if len(p.Authors) > 3 {
		authors += " et al."
	}

	year := ""
	if p.Year > 0 {
		year = fmt.Sprintf("%d", p.Year)
	}

	link := p.URL
	if link == "" {
		link = p.ExternalIDs.DOI
	}

	return ReferenceItem{
		ReferenceNumber: number,
		Authors:         authors,
		Year:            year,
		Title:           p.Title,
		JournalSource:   p.Venue,
		URLDOI:          link,
	}
}
