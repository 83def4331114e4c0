// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Document is one retrieved artifact fragment from a simulation run.
// ExperimentName and ExperimentParams are empty for single-experiment pools.
type Document struct {
	Filename         string `json:"filename"`
	Text             string `json:"text"`
	ExperimentName   string `json:"experiment_name,omitempty"`
	ExperimentParams string `json:"experiment_params,omitempty"`
}

// DocumentPool is the ordered set of documents retrieved for one query.
// Pools are owned by a single pipeline invocation and never shared.
type DocumentPool []Document

// ExperimentNames returns the distinct non-empty experiment names in
// first-seen pool order.
func (p DocumentPool) ExperimentNames() []string {
	seen := make(map[string]bool, len(p))
	var names []string
	for _, doc := range p {
		if doc.ExperimentName == "" || seen[doc.ExperimentName] {
			continue
		}
		seen[doc.ExperimentName] = true
		names = append(names, doc.ExperimentName)
	}
	return names
}

// IsMultiExperiment reports whether the pool spans more than one experiment.
func (p DocumentPool) IsMultiExperiment() bool {
	return len(p.ExperimentNames()) > 1
}

// ExperimentGroup summarizes one experiment's contribution to a pool:
// the distinct filenames it supplied and its parameter string.
type ExperimentGroup struct {
	Name      string
	Params    string
	Filenames []string
}

// GroupByExperiment derives per-experiment file manifests from the pool.
// Groups appear in first-seen pool order; filenames are deduplicated in
// first-seen order. When documents disagree on the params for one
// experiment the first-seen value wins.
func (p DocumentPool) GroupByExperiment() []ExperimentGroup {
	index := make(map[string]int, len(p))
	var groups []ExperimentGroup
	for _, doc := range p {
		name := doc.ExperimentName
		if name == "" {
			name = "Unknown"
		}
		i, ok := index[name]
		if !ok {
			index[name] = len(groups)
			groups = append(groups, ExperimentGroup{Name: name, Params: doc.ExperimentParams})
			i = len(groups) - 1
		}
		if !containsString(groups[i].Filenames, doc.Filename) {
			groups[i].Filenames = append(groups[i].Filenames, doc.Filename)
		}
	}
	return groups
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
