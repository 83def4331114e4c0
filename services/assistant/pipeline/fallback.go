// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/JoeMat18/simulations-platform/services/assistant/datatypes"
)

// nodeInfoFilename is the artifact the node-count handler reads. FloodNS
// writes it headerless with the node ID in the first column.
const nodeInfoFilename = "node_info.csv"

var numberPattern = regexp.MustCompile(`[\d.]+`)

// Fallback computes a deterministic answer directly from the raw tabular data
// when no generative backend is reachable. It never fails: when neither the
// node-count nor the bandwidth-average handler produces a figure, it degrades
// to a manifest of the retrieved files stating that automatic processing was
// unavailable.
func Fallback(query string, pool datatypes.DocumentPool) string {
	q := strings.ToLower(query)

	if strings.Contains(q, "node") && (strings.Contains(q, "count") || strings.Contains(q, "how many")) {
		if answer := nodeCountAnswer(pool); answer != "" {
			return answer
		}
	} else if strings.Contains(q, "bandwidth") && strings.Contains(q, "average") {
		if answer := bandwidthAverageAnswer(pool); answer != "" {
			return answer
		}
	}

	return manifestAnswer(pool)
}

// nodeCountAnswer counts distinct first-column values in node_info.csv.
// When structural parsing fails it approximates with the non-empty line count
// and labels the answer as approximate. Returns "" when no usable document is
// present.
func nodeCountAnswer(pool datatypes.DocumentPool) string {
	for _, doc := range pool {
		if doc.Filename != nodeInfoFilename || doc.Text == "" {
			continue
		}
		records, err := parseDelimited(doc.Filename, doc.Text)
		if err != nil || len(records) == 0 {
			return fmt.Sprintf("Based on the node_info.csv file, there appear to be approximately %d nodes in the simulation.", countNonEmptyLines(doc.Text))
		}
		seen := make(map[string]bool, len(records))
		for _, record := range records {
			if len(record) > 0 {
				seen[record[0]] = true
			}
		}
		return fmt.Sprintf("Based on the node_info.csv file, there are %d unique nodes in the simulation.", len(seen))
	}
	return ""
}

// bandwidthAverageAnswer averages the last column of the first bandwidth
// document that yields numeric values. Non-numeric entries are skipped; when
// structural parsing yields nothing it falls back to pattern-matching numeric
// substrings in the raw text, keeping only strictly positive readings.
func bandwidthAverageAnswer(pool datatypes.DocumentPool) string {
	for _, doc := range pool {
		if !strings.Contains(strings.ToLower(doc.Filename), "bandwidth") || doc.Text == "" {
			continue
		}

		records, err := parseDelimited(doc.Filename, doc.Text)
		if err == nil {
			var values []float64
			for _, record := range records {
				if len(record) == 0 {
					continue
				}
				v, perr := strconv.ParseFloat(strings.TrimSpace(record[len(record)-1]), 64)
				if perr != nil {
					continue
				}
				values = append(values, v)
			}
			if len(values) > 0 {
				return fmt.Sprintf("Based on %s, the average bandwidth is approximately %.2f.", doc.Filename, mean(values))
			}
		}

		// Pattern-matching approximation over the raw text. Zero and
		// negative readings are excluded here.
		var values []float64
		for _, token := range numberPattern.FindAllString(doc.Text, -1) {
			v, perr := strconv.ParseFloat(token, 64)
			if perr != nil || v <= 0 {
				continue
			}
			values = append(values, v)
		}
		if len(values) > 0 {
			return fmt.Sprintf("Based on %s, the average bandwidth is approximately %.2f.", doc.Filename, mean(values))
		}
	}
	return ""
}

// manifestAnswer is the general degradation path: name what was retrieved
// and state that automatic processing was unavailable.
func manifestAnswer(pool datatypes.DocumentPool) string {
	experiments := pool.ExperimentNames()

	if len(experiments) > 1 {
		grouped := make(map[string][]string)
		var order []string
		for _, doc := range pool {
			name := doc.ExperimentName
			if name == "" {
				name = "Unknown"
			}
			if _, ok := grouped[name]; !ok {
				order = append(order, name)
			}
			grouped[name] = append(grouped[name], orUnknown(doc.Filename))
		}

		lines := make([]string, 0, len(order))
		for _, name := range order {
			lines = append(lines, fmt.Sprintf("%s: %s", name, strings.Join(grouped[name], ", ")))
		}
		return fmt.Sprintf("I found relevant information from %d experiments (%s) in the following files:\n%s\n\nHowever, I couldn't process the comparative analysis automatically. The API service is currently unavailable.",
			len(experiments), strings.Join(experiments, ", "), strings.Join(lines, "\n"))
	}

	filenames := make([]string, 0, len(pool))
	for _, doc := range pool {
		filenames = append(filenames, orUnknown(doc.Filename))
	}
	return fmt.Sprintf("I found relevant information in %s, but couldn't process it automatically. The API service is currently unavailable.",
		strings.Join(filenames, ", "))
}

// parseDelimited reads headerless comma-delimited rows. Rows may have varying
// field counts; blank lines are skipped. Quoting is strict so that mangled
// files surface as MalformedTabularError and reach the approximation paths.
func parseDelimited(filename, text string) ([][]string, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &MalformedTabularError{Filename: filename, Reason: err.Error()}
	}
	return records, nil
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func countNonEmptyLines(text string) int {
	n := 0
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func orUnknown(filename string) string {
	if filename == "" {
		return "unknown"
	}
	return filename
}
