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

package mcpomop

import (
	"context"
	"fmt"

	"github.com/teradata-labs/omop-mcp-server/pkg/mcp/protocol"
)

// ListPrompts returns the three fixed prompt templates.
func (s *Server) ListPrompts(ctx context.Context) ([]protocol.Prompt, error) {
	return []protocol.Prompt{
		{
			Name:        "cohort/sql",
			Description: "Draft a cohort-identification question for generate_cohort_sql.",
			Arguments: []protocol.PromptArgument{
				{Name: "exposure", Description: "Exposure concept name or drug class", Required: true},
				{Name: "outcome", Description: "Outcome concept name or condition", Required: true},
				{Name: "time_window", Description: "Lookback window, e.g. '90 days'", Required: false},
				{Name: "dialect", Description: "Target SQL dialect", Required: false},
			},
		},
		{
			Name:        "analysis/discovery",
			Description: "Turn a clinical question into a concept-discovery plan.",
			Arguments: []protocol.PromptArgument{
				{Name: "question", Description: "The clinical or research question to investigate", Required: true},
				{Name: "domains", Description: "Comma-separated OMOP domains to consider", Required: false},
			},
		},
		{
			Name:        "query/multi-step",
			Description: "Plan a multi-step analytical query over a concept set.",
			Arguments: []protocol.PromptArgument{
				{Name: "concept_ids", Description: "Comma-separated concept ids", Required: true},
				{Name: "domain", Description: "OMOP domain the concept ids belong to", Required: true},
			},
		},
	}, nil
}

// GetPrompt renders one of the fixed prompts by id.
func (s *Server) GetPrompt(ctx context.Context, id string, args map[string]interface{}) (*protocol.GetPromptResult, error) {
	switch id {
	case "cohort/sql":
		return s.promptCohortSQL(args)
	case "analysis/discovery":
		return s.promptAnalysisDiscovery(args)
	case "query/multi-step":
		return s.promptQueryMultiStep(args)
	default:
		return nil, notFound("unknown prompt %q", id)
	}
}

func userMessage(text string) protocol.PromptMessage {
	return protocol.PromptMessage{Role: "user", Content: protocol.Content{Type: "text", Text: text}}
}

func (s *Server) promptCohortSQL(args map[string]interface{}) (*protocol.GetPromptResult, error) {
	exposure, err := argString(args, "exposure", true)
	if err != nil {
		return nil, err
	}
	outcome, err := argString(args, "outcome", true)
	if err != nil {
		return nil, err
	}
	window, err := argString(args, "time_window", false)
	if err != nil {
		return nil, err
	}
	if window == "" {
		window = "90 days"
	}
	dialectName, err := argString(args, "dialect", false)
	if err != nil {
		return nil, err
	}
	if dialectName == "" {
		dialectName = "the default backend's dialect"
	}

	text := fmt.Sprintf(
		"Identify patients exposed to %q who later developed %q within %s. "+
			"First use discover_concepts to resolve %q and %q to standard OMOP concept ids, "+
			"then call generate_cohort_sql with those ids and pre_outcome_days matching the window "+
			"above, targeting %s.",
		exposure, outcome, window, exposure, outcome, dialectName,
	)
	return &protocol.GetPromptResult{
		Description: "Cohort-identification SQL drafting prompt",
		Messages:    []protocol.PromptMessage{userMessage(text)},
	}, nil
}

func (s *Server) promptAnalysisDiscovery(args map[string]interface{}) (*protocol.GetPromptResult, error) {
	question, err := argString(args, "question", true)
	if err != nil {
		return nil, err
	}
	domains, err := argString(args, "domains", false)
	if err != nil {
		return nil, err
	}

	domainClause := "across all OMOP domains"
	if domains != "" {
		domainClause = fmt.Sprintf("restricted to the %s domain(s)", domains)
	}

	text := fmt.Sprintf(
		"Investigate: %q. Use discover_concepts to find candidate concepts %s, "+
			"inspect get_concept_relationships for any ambiguous or hierarchical terms, "+
			"and summarize the concept set before running any analytical query.",
		question, domainClause,
	)
	return &protocol.GetPromptResult{
		Description: "Concept-discovery planning prompt",
		Messages:    []protocol.PromptMessage{userMessage(text)},
	}, nil
}

func (s *Server) promptQueryMultiStep(args map[string]interface{}) (*protocol.GetPromptResult, error) {
	conceptIDs, err := argString(args, "concept_ids", true)
	if err != nil {
		return nil, err
	}
	domain, err := argString(args, "domain", true)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf(
		"Plan a multi-step analysis over concept ids [%s] in the %s domain: "+
			"start with query_omop query_type=count to size the population, "+
			"then breakdown to understand its composition, and only fall back to "+
			"list_patients if a row-level view is strictly necessary and permitted.",
		conceptIDs, domain,
	)
	return &protocol.GetPromptResult{
		Description: "Multi-step analytical query planning prompt",
		Messages:    []protocol.PromptMessage{userMessage(text)},
	}, nil
}
