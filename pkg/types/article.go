// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the article-engine pipeline:
// the article document model, fetched paper records, and stage configuration.
package types

import (
	"encoding/json"
	"fmt"
)

// Article headings form a closed vocabulary. Every section of an article
// carries exactly one of these headings, and the heading determines the
// shape of the section content.
const (
	HeadingOverview             = "Overview"
	HeadingKeyFacts             = "Key Facts"
	HeadingSymptoms             = "Symptoms"
	HeadingTypes                = "Types"
	HeadingCauses               = "Causes"
	HeadingRiskFactors          = "Risk Factors"
	HeadingDiagnosis            = "Diagnosis"
	HeadingPrevention           = "Prevention"
	HeadingSpecialistToVisit    = "Specialist to Visit"
	HeadingTreatment            = "Treatment"
	HeadingHomeCare             = "Home-Care"
	HeadingLivingWith           = "Living With"
	HeadingComplications        = "Complications"
	HeadingAlternativeTherapies = "Alternative Therapies"
	HeadingFAQs                 = "FAQs"
	HeadingReferences           = "References"
)

// ContentKind identifies the shape of a section's content.
type ContentKind string

const (
	// ContentText is free-running prose (may contain Markdown subheadings).
	ContentText ContentKind = "text"

	// ContentList is an ordered list of strings.
	ContentList ContentKind = "list"

	// ContentFAQ is an ordered list of question/answer pairs.
	ContentFAQ ContentKind = "faq"

	// ContentReferences is an ordered list of reference items.
	ContentReferences ContentKind = "references"
)

// headingKinds maps each heading to its content shape.
var headingKinds = map[string]ContentKind{
	HeadingOverview:             ContentText,
	HeadingKeyFacts:             ContentList,
	HeadingSymptoms:             ContentList,
	HeadingTypes:                ContentText,
	HeadingCauses:               ContentText,
	HeadingRiskFactors:          ContentList,
	HeadingDiagnosis:            ContentText,
	HeadingPrevention:           ContentList,
	HeadingSpecialistToVisit:    ContentText,
	HeadingTreatment:            ContentText,
	HeadingHomeCare:             ContentList,
	HeadingLivingWith:           ContentText,
	HeadingComplications:        ContentText,
	HeadingAlternativeTherapies: ContentText,
	HeadingFAQs:                 ContentFAQ,
	HeadingReferences:           ContentReferences,
}

// HeadingKind returns the content shape for a heading. The second return
// is false for headings outside the article vocabulary.
func HeadingKind(heading string) (ContentKind, bool) {
	k, ok := headingKinds[heading]
	return k, ok
}

// FAQItem is one question/answer pair in the FAQs section.
type FAQItem struct {
	// Question is a frequently asked question about the topic.
	Question string `json:"question"`

	// Answer is a concise answer; it may contain citation markers.
	Answer string `json:"answer"`
}

// ReferenceItem is one entry in the References section.
type ReferenceItem struct {
	// ReferenceNumber is the sequential number cited by inline markers.
	ReferenceNumber int `json:"reference_number"`

	// Authors lists the reference authors as a single display string.
	Authors string `json:"authors"`

	// Year is the publication year (kept as a string; source data carries
	// values like "2021" and "Unknown Year").
	Year string `json:"year"`

	// Title is the reference title.
	Title string `json:"title"`

	// JournalSource is the journal or source of publication.
	JournalSource string `json:"journal_source"`

	// URLDOI is the reference URL or DOI.
	URLDOI string `json:"url_doi"`
}

// Complete reports whether the item carries every field required of a
// well-formed reference: authors, year, and journal source. Title and
// URL may be absent.
func (r ReferenceItem) Complete() bool {
	return r.Authors != "" && r.Year != "" && r.JournalSource != ""
}

// Section is one article section. The heading selects which content field
// is populated; the other content fields are zero. Use Kind to dispatch.
type Section struct {
	// Heading is one of the closed heading set.
	Heading string

	// Text holds prose content for text-shaped headings.
	Text string

	// Items holds list content for list-shaped headings.
	Items []string

	// FAQs holds question/answer pairs for the FAQs heading.
	FAQs []FAQItem

	// References holds reference items for the References heading.
	References []ReferenceItem
}

// Kind returns the content shape of the section. The second return is
// false for headings outside the article vocabulary.
func (s *Section) Kind() (ContentKind, bool) {
	return HeadingKind(s.Heading)
}

// sectionJSON is the wire form of a Section.
type sectionJSON struct {
	Heading string          `json:"heading"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON encodes the section as {"heading": ..., "content": ...} with
// the content shape selected by the heading.
func (s Section) MarshalJSON() ([]byte, error) {
	kind, ok := HeadingKind(s.Heading)
	if !ok {
		return nil, fmt.Errorf("unknown section heading %q", s.Heading)
	}

	var content any
	switch kind {
	case ContentText:
		content = s.Text
	case ContentList:
		if s.Items == nil {
			content = []string{}
		} else {
			content = s.Items
		}
	case ContentFAQ:
		if s.FAQs == nil {
			content = []FAQItem{}
		} else {
			content = s.FAQs
		}
	case ContentReferences:
		if s.References == nil {
			content = []ReferenceItem{}
		} else {
			content = s.References
		}
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sectionJSON{Heading: s.Heading, Content: raw})
}

// UnmarshalJSON decodes a section, validating the heading against the
// closed set and the content against the heading's shape.
func (s *Section) UnmarshalJSON(data []byte) error {
	var sj sectionJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return err
	}

	kind, ok := HeadingKind(sj.Heading)
	if !ok {
		return fmt.Errorf("unknown section heading %q", sj.Heading)
	}

	*s = Section{Heading: sj.Heading}
	if len(sj.Content) == 0 {
		return fmt.Errorf("section %q has no content", sj.Heading)
	}

	switch kind {
	case ContentText:
		if err := json.Unmarshal(sj.Content, &s.Text); err != nil {
			return fmt.Errorf("section %q: expected text content: %w", sj.Heading, err)
		}
	case ContentList:
		if err := json.Unmarshal(sj.Content, &s.Items); err != nil {
			return fmt.Errorf("section %q: expected a list of strings: %w", sj.Heading, err)
		}
	case ContentFAQ:
		if err := json.Unmarshal(sj.Content, &s.FAQs); err != nil {
			return fmt.Errorf("section %q: expected question/answer pairs: %w", sj.Heading, err)
		}
	case ContentReferences:
		if err := json.Unmarshal(sj.Content, &s.References); err != nil {
			return fmt.Errorf("section %q: expected reference items: %w", sj.Heading, err)
		}
	}
	return nil
}

// Article is a complete knowledgebase document: a title, subtitle, and an
// ordered sequence of sections.
type Article struct {
	// Title is the main heading of the article.
	Title string `json:"title"`

	// Subtitle is a concise introductory phrase for the article.
	Subtitle string `json:"subtitle"`

	// Sections holds the article body in display order.
	Sections []Section `json:"sections"`
}

// ReferencesSection returns a pointer to the References section, or nil
// when the article has none.
func (a *Article) ReferencesSection() *Section {
	for i := range a.Sections {
		if a.Sections[i].Heading == HeadingReferences {
			return &a.Sections[i]
		}
	}
	return nil
}
