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

// Package vocabulary wraps the external OMOP vocabulary HTTP API behind
// a normalized, cached, retrying client.
package vocabulary

import "time"

// Domain is the OMOP domain partition a Concept belongs to.
type Domain string

const (
	DomainCondition    Domain = "Condition"
	DomainDrug         Domain = "Drug"
	DomainProcedure    Domain = "Procedure"
	DomainMeasurement  Domain = "Measurement"
	DomainObservation  Domain = "Observation"
	DomainDevice       Domain = "Device"
	DomainVisit        Domain = "Visit"
	DomainDeath        Domain = "Death"
	DomainDemographics Domain = "Demographics"
	DomainOther        Domain = "Other"
)

var validDomains = map[Domain]bool{
	DomainCondition: true, DomainDrug: true, DomainProcedure: true,
	DomainMeasurement: true, DomainObservation: true, DomainDevice: true,
	DomainVisit: true, DomainDeath: true, DomainDemographics: true, DomainOther: true,
}

// StandardFlag is the tri-valued standard-concept indicator.
type StandardFlag string

const (
	StandardConcept      StandardFlag = "standard"
	ClassificationConcept StandardFlag = "classification"
	NonStandardConcept   StandardFlag = "non-standard"
)

// Concept is an immutable OMOP vocabulary entry. Invariant: ID >= 1 and
// Domain is one of the enumerated values.
type Concept struct {
	ID             int64
	Name           string
	Domain         Domain
	Vocabulary     string
	ConceptClass   string
	Standard       StandardFlag
	SourceCode     string
	ValidStartDate time.Time
	ValidEndDate   time.Time
	InvalidReason  string // empty when valid
	RelevanceScore float64
}

// Valid reports whether the Concept satisfies its invariants.
func (c Concept) Valid() bool {
	return c.ID >= 1 && validDomains[c.Domain]
}

// Relationship is a directed edge between two concept ids. Invariant:
// both endpoint ids >= 1.
type Relationship struct {
	ConceptID1       int64
	ConceptID2       int64
	RelationshipName string
	ValidStartDate   time.Time
	ValidEndDate     time.Time
}

// Valid reports whether the Relationship satisfies its invariants.
func (r Relationship) Valid() bool {
	return r.ConceptID1 >= 1 && r.ConceptID2 >= 1
}

// ConceptDiscoveryResult is the envelope returned by discovery search.
// StandardOnly and IDs are always derived from Concepts and must stay
// consistent with it.
type ConceptDiscoveryResult struct {
	Query        string
	Concepts     []Concept
	StandardOnly []Concept
	IDs          []int64
	Metadata     map[string]string
}

// NewConceptDiscoveryResult builds a result with derived lists computed
// from concepts, keeping StandardOnly/IDs consistent with Concepts.
func NewConceptDiscoveryResult(query string, concepts []Concept, metadata map[string]string) ConceptDiscoveryResult {
	standardOnly := make([]Concept, 0, len(concepts))
	ids := make([]int64, 0, len(concepts))
	for _, c := range concepts {
		ids = append(ids, c.ID)
		if c.Standard == StandardConcept {
			standardOnly = append(standardOnly, c)
		}
	}
	return ConceptDiscoveryResult{
		Query:        query,
		Concepts:     concepts,
		StandardOnly: standardOnly,
		IDs:          ids,
		Metadata:     metadata,
	}
}

// Page is one page of a cursor-paginated search.
type Page struct {
	Concepts   []Concept
	NextOffset *int // nil once the search is exhausted
}
