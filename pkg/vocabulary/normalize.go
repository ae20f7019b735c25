// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vocabulary

import "time"

// conceptDTO is the remote's wire shape. Field names and casing come
// from the upstream OMOP vocabulary API's camelCase/alias conventions;
// unknown fields are simply not in this struct and are dropped by
// encoding/json.
type conceptDTO struct {
	ConceptID       int64   `json:"conceptId"`
	ConceptName     string  `json:"conceptName"`
	DomainID        string  `json:"domainId"`
	VocabularyID    string  `json:"vocabularyId"`
	ConceptClassID  string  `json:"conceptClassId"`
	StandardConcept string  `json:"standardConcept"`
	ConceptCode     string  `json:"conceptCode"`
	ValidStartDate  string  `json:"validStartDate"`
	ValidEndDate    string  `json:"validEndDate"`
	InvalidReason   string  `json:"invalidReason"`
	Score           float64 `json:"score"`
}

func (d conceptDTO) normalize() Concept {
	return Concept{
		ID:             d.ConceptID,
		Name:           d.ConceptName,
		Domain:         Domain(d.DomainID),
		Vocabulary:     d.VocabularyID,
		ConceptClass:   d.ConceptClassID,
		Standard:       normalizeStandardFlag(d.StandardConcept),
		SourceCode:     d.ConceptCode,
		ValidStartDate: parseOMOPDate(d.ValidStartDate),
		ValidEndDate:   parseOMOPDate(d.ValidEndDate),
		InvalidReason:  d.InvalidReason,
		RelevanceScore: d.Score,
	}
}

// normalizeStandardFlag maps the upstream's raw standardConcept code
// ("S", "C", or absent) onto the tri-valued flag. A missing value is
// treated as non-standard per the normalization rule.
func normalizeStandardFlag(raw string) StandardFlag {
	switch raw {
	case "S":
		return StandardConcept
	case "C":
		return ClassificationConcept
	default:
		return NonStandardConcept
	}
}

func parseOMOPDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	// OMOP vocabulary APIs commonly emit YYYYMMDD; fall back to RFC3339
	// for APIs that emit full timestamps.
	if t, err := time.Parse("20060102", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

type relationshipDTO struct {
	ConceptID1       int64  `json:"conceptId1"`
	ConceptID2       int64  `json:"conceptId2"`
	RelationshipID   string `json:"relationshipId"`
	RelationshipName string `json:"relationshipName"`
	ValidStartDate   string `json:"validStartDate"`
	ValidEndDate     string `json:"validEndDate"`
}

func (d relationshipDTO) normalize() Relationship {
	name := d.RelationshipName
	if name == "" {
		name = d.RelationshipID
	}
	return Relationship{
		ConceptID1:       d.ConceptID1,
		ConceptID2:       d.ConceptID2,
		RelationshipName: name,
		ValidStartDate:   parseOMOPDate(d.ValidStartDate),
		ValidEndDate:     parseOMOPDate(d.ValidEndDate),
	}
}

// searchResponse is the remote's paginated search envelope.
type searchResponse struct {
	Concepts []conceptDTO `json:"concepts"`
	Total    int          `json:"total"`
}

// toPage converts the raw response into a Page, deriving NextOffset
// from whether this page was full and more records are known to remain.
func (r searchResponse) toPage(offset, limit int) Page {
	concepts := make([]Concept, 0, len(r.Concepts))
	for _, c := range r.Concepts {
		concepts = append(concepts, c.normalize())
	}

	var next *int
	nextOffset := offset + len(concepts)
	if len(concepts) == limit && nextOffset < r.Total {
		next = &nextOffset
	}

	return Page{Concepts: concepts, NextOffset: next}
}
