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

// cdmReferenceColumns is the canonical OMOP CDM v5.4 column set for the
// tables this server reasons about. get_information_schema flags any
// discovered column absent from this set as non-standard (a local
// extension), rather than failing — unrecognized columns are common in
// real warehouses and are not by themselves a safety concern.
var cdmReferenceColumns = map[string]map[string]bool{
	"person": setOf(
		"person_id", "gender_concept_id", "year_of_birth", "month_of_birth",
		"day_of_birth", "birth_datetime", "race_concept_id", "ethnicity_concept_id",
		"location_id", "provider_id", "care_site_id", "person_source_value",
		"gender_source_value", "gender_source_concept_id", "race_source_value",
		"race_source_concept_id", "ethnicity_source_value", "ethnicity_source_concept_id",
	),
	"observation_period": setOf(
		"observation_period_id", "person_id", "observation_period_start_date",
		"observation_period_end_date", "period_type_concept_id",
	),
	"visit_occurrence": setOf(
		"visit_occurrence_id", "person_id", "visit_concept_id", "visit_start_date",
		"visit_start_datetime", "visit_end_date", "visit_end_datetime",
		"visit_type_concept_id", "provider_id", "care_site_id", "visit_source_value",
		"visit_source_concept_id", "admitted_from_concept_id", "admitted_from_source_value",
		"discharged_to_concept_id", "discharged_to_source_value", "preceding_visit_occurrence_id",
	),
	"condition_occurrence": setOf(
		"condition_occurrence_id", "person_id", "condition_concept_id",
		"condition_start_date", "condition_start_datetime", "condition_end_date",
		"condition_end_datetime", "condition_type_concept_id", "condition_status_concept_id",
		"stop_reason", "provider_id", "visit_occurrence_id", "visit_detail_id",
		"condition_source_value", "condition_source_concept_id",
		"condition_status_source_value",
	),
	"drug_exposure": setOf(
		"drug_exposure_id", "person_id", "drug_concept_id", "drug_exposure_start_date",
		"drug_exposure_start_datetime", "drug_exposure_end_date", "drug_exposure_end_datetime",
		"verbatim_end_date", "drug_type_concept_id", "stop_reason", "refills",
		"quantity", "days_supply", "sig", "route_concept_id", "lot_number",
		"provider_id", "visit_occurrence_id", "visit_detail_id",
		"drug_source_value", "drug_source_concept_id", "route_source_value",
		"dose_unit_source_value",
	),
	"procedure_occurrence": setOf(
		"procedure_occurrence_id", "person_id", "procedure_concept_id", "procedure_date",
		"procedure_datetime", "procedure_end_date", "procedure_end_datetime",
		"procedure_type_concept_id", "modifier_concept_id", "quantity", "provider_id",
		"visit_occurrence_id", "visit_detail_id", "procedure_source_value",
		"procedure_source_concept_id", "modifier_source_value",
	),
	"measurement": setOf(
		"measurement_id", "person_id", "measurement_concept_id", "measurement_date",
		"measurement_datetime", "measurement_time", "measurement_type_concept_id",
		"operator_concept_id", "value_as_number", "value_as_concept_id",
		"unit_concept_id", "range_low", "range_high", "provider_id",
		"visit_occurrence_id", "visit_detail_id", "measurement_source_value",
		"measurement_source_concept_id", "unit_source_value", "value_source_value",
	),
	"observation": setOf(
		"observation_id", "person_id", "observation_concept_id", "observation_date",
		"observation_datetime", "observation_type_concept_id", "value_as_number",
		"value_as_string", "value_as_concept_id", "qualifier_concept_id",
		"unit_concept_id", "provider_id", "visit_occurrence_id", "visit_detail_id",
		"observation_source_value", "observation_source_concept_id",
		"unit_source_value", "qualifier_source_value",
	),
	"death": setOf(
		"person_id", "death_date", "death_datetime", "death_type_concept_id",
		"cause_concept_id", "cause_source_value", "cause_source_concept_id",
	),
	"concept": setOf(
		"concept_id", "concept_name", "domain_id", "vocabulary_id", "concept_class_id",
		"standard_concept", "concept_code", "valid_start_date", "valid_end_date",
		"invalid_reason",
	),
	"concept_relationship": setOf(
		"concept_id_1", "concept_id_2", "relationship_id", "valid_start_date",
		"valid_end_date", "invalid_reason",
	),
}

func setOf(items ...string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}

// classifyColumns annotates each of table's discovered columns with
// whether it belongs to the CDM reference set. Tables outside the
// reference set (custom/vendor tables) report every column as standard
// since there is nothing to compare against.
func classifyColumns(table string, columns []string) []ColumnInfo {
	reference, known := cdmReferenceColumns[table]
	infos := make([]ColumnInfo, len(columns))
	for i, c := range columns {
		standard := !known || reference[c]
		infos[i] = ColumnInfo{Name: c, Standard: standard}
	}
	return infos
}
