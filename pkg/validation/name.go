// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for
// security-critical operations.
//
// This package contains validators for configuration-provided names
// that end up in store paths and on-disk keys. Using these validators
// prevents path traversal and keeps derived paths unambiguous.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// namePattern matches valid quantity and column identifiers.
// Allows: letters, digits, underscores; must start with a letter.
// Max length: 64 characters.
var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)

// ValidateName validates a quantity or column identifier.
//
// Identifiers become path components and key prefixes in the histogram
// store, so separators and traversal sequences are rejected outright.
//
// Valid names:
//   - 1-64 characters
//   - Letters A-Z, a-z
//   - Digits 0-9 and underscores after the first character
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateName(cfg.Name); err != nil {
//	    return fmt.Errorf("invalid quantity name: %w", err)
//	}
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid name format: %q (must be 1-64 chars, letter first, then letters, digits, or underscores)", name)
	}

	return nil
}

// ValidateNames validates multiple identifiers.
// Returns an error listing all invalid names if any fail validation.
func ValidateNames(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateName(n); err != nil {
			invalid = append(invalid, n)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid names: %v", invalid)
	}
	return nil
}

// ValidateFolder validates a store folder path such as a quantity's
// top-level folder. Each slash-separated component must be a valid
// name; leading and trailing slashes are tolerated.
//
// Example:
//
//	if err := validation.ValidateFolder(cfg.TopFolder); err != nil {
//	    return fmt.Errorf("invalid top folder: %w", err)
//	}
func ValidateFolder(folder string) error {
	if folder == "" {
		return fmt.Errorf("folder cannot be empty")
	}
	for _, part := range strings.Split(strings.Trim(folder, "/"), "/") {
		if err := ValidateName(part); err != nil {
			return fmt.Errorf("folder %q: %w", folder, err)
		}
	}
	return nil
}
