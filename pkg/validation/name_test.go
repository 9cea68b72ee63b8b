// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	valid := []string{
		"digis",
		"num_digis",
		"PXLayer",
		"a",
		"Clusters2D",
		strings.Repeat("a", 64),
	}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{
		"",
		"1digis",
		"_digis",
		"digis charge",
		"a/b",
		"../etc",
		"a.b",
		"a-b",
		strings.Repeat("a", 65),
	}
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", name)
		}
	}
}

func TestValidateNames(t *testing.T) {
	if err := ValidateNames([]string{"a", "b"}); err != nil {
		t.Errorf("ValidateNames(valid) = %v", err)
	}
	err := ValidateNames([]string{"ok", "not ok", "also/bad"})
	if err == nil {
		t.Fatal("ValidateNames with invalid entries must fail")
	}
	if !strings.Contains(err.Error(), "not ok") || !strings.Contains(err.Error(), "also/bad") {
		t.Errorf("error %q must list all invalid names", err)
	}
}

func TestValidateFolder(t *testing.T) {
	valid := []string{"PixelPhase1", "PixelPhase1/Digis", "/a/b/"}
	for _, f := range valid {
		if err := ValidateFolder(f); err != nil {
			t.Errorf("ValidateFolder(%q) = %v, want nil", f, err)
		}
	}

	invalid := []string{"", "a//b", "a/../b", "a/b c"}
	for _, f := range invalid {
		if err := ValidateFolder(f); err == nil {
			t.Errorf("ValidateFolder(%q) = nil, want error", f)
		}
	}
}
