// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	chunkSize    = 1000
	chunkOverlap = chunkSize / 10
)

var (
	defaultSeparators = []string{"\n\n", "\n", " ", ""}

	// csvSeparators split on row boundaries first so a chunk never cuts a
	// record in half unless a single row exceeds the chunk size.
	csvSeparators = []string{"\n", ",", " ", ""}

	markdownSeparators = []string{
		"\n# ", "\n## ", "\n### ", "\n#### ",
		"\n\n", "\n", " ", "",
	}
)

// splitterFor picks a splitter by file extension. Simulation runs are mostly
// CSV logs plus the odd properties file and markdown summary.
func splitterFor(filename string) textsplitter.TextSplitter {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(csvSeparators),
		)

	case ".md":
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(markdownSeparators),
		)

	default:
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(defaultSeparators),
		)
	}
}
