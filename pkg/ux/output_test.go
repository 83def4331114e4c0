// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// Helper to capture stdout
func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func TestIcon_Render_Styled(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending} {
		if icon.Render() == "" {
			t.Errorf("expected non-empty render for %q", icon)
		}
	}
}

func TestIcon_Render_Default(t *testing.T) {
	// Icons without specific styling render as-is
	for _, icon := range []Icon{IconArrow, IconBullet} {
		if got := icon.Render(); got != string(icon) {
			t.Errorf("expected %q, got %q", string(icon), got)
		}
	}
}

func TestSuccess_IncludesMessage(t *testing.T) {
	output := captureStdout(func() {
		Success("ingestion complete")
	})
	if !strings.Contains(output, "ingestion complete") {
		t.Errorf("expected message in output, got %q", output)
	}
}

func TestError_IncludesMessage(t *testing.T) {
	output := captureStdout(func() {
		Error("run directory missing")
	})
	if !strings.Contains(output, "run directory missing") {
		t.Errorf("expected message in output, got %q", output)
	}
}

func TestInfo_IncludesMessage(t *testing.T) {
	output := captureStdout(func() {
		Info("3 experiments found")
	})
	if !strings.Contains(output, "3 experiments found") {
		t.Errorf("expected message in output, got %q", output)
	}
}

func TestBox_IncludesTitleAndContent(t *testing.T) {
	output := captureStdout(func() {
		Box("Answer", "average bandwidth is 4.2")
	})
	if !strings.Contains(output, "Answer") || !strings.Contains(output, "average bandwidth is 4.2") {
		t.Errorf("expected title and content in box output, got %q", output)
	}
}

func TestKeyValue_AlignsKey(t *testing.T) {
	output := captureStdout(func() {
		KeyValue("state", "Finished")
	})
	if !strings.Contains(output, "state:") || !strings.Contains(output, "Finished") {
		t.Errorf("expected key and value in output, got %q", output)
	}
}

func TestStateIcon(t *testing.T) {
	cases := map[string]Icon{
		"Finished":   IconSuccess,
		"Error":      IconError,
		"Running":    IconPending,
		"Re-Running": IconPending,
		"Created":    IconBullet,
	}
	for state, want := range cases {
		if got := StateIcon(state); got != want {
			t.Errorf("StateIcon(%q) = %q, want %q", state, got, want)
		}
	}
}
