// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// The generic encapsulates the marshal/unmarshal round trip needed to turn
// Weaviate's dynamic response data into a strongly-typed struct. The target
// type T must carry json tags matching the response shape; mismatched fields
// decode to zero values rather than erroring.
//
//	resp, err := client.GraphQL().Get().WithClassName("SimulationDocument").Do(ctx)
//	if err != nil { ... }
//	parsed, err := ParseGraphQLResponse[SimulationDocumentQueryResponse](resp)
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
		return nil, fmt.Errorf("GraphQL query returned errors: %v", msgs)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// SimulationDocument Response Types
// =============================================================================

// SimulationDocumentQueryResponse is the shape of a Get query against the
// SimulationDocument class.
type SimulationDocumentQueryResponse struct {
	Get struct {
		SimulationDocument []SimulationDocumentResult `json:"SimulationDocument"`
	} `json:"Get"`
}

// SimulationDocumentResult is one retrieved SimulationDocument object.
type SimulationDocumentResult struct {
	Filename         string `json:"filename"`
	Text             string `json:"text"`
	ExperimentName   string `json:"experiment_name"`
	ExperimentParams string `json:"experiment_params"`
	ChunkIndex       *int   `json:"chunk_index"`
	Additional       struct {
		ID        string  `json:"id"`
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

// ToDocument converts a query result into the pipeline's Document form.
func (r SimulationDocumentResult) ToDocument() Document {
	return Document{
		Filename:         r.Filename,
		Text:             r.Text,
		ExperimentName:   r.ExperimentName,
		ExperimentParams: r.ExperimentParams,
	}
}

// SimulationDocumentAggregateResponse is the shape of an Aggregate query
// against the SimulationDocument class, grouped by experiment name.
type SimulationDocumentAggregateResponse struct {
	Aggregate struct {
		SimulationDocument []struct {
			GroupedBy struct {
				Value string `json:"value"`
			} `json:"groupedBy"`
			Meta struct {
				Count int `json:"count"`
			} `json:"meta"`
		} `json:"SimulationDocument"`
	} `json:"Aggregate"`
}
