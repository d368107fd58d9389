// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for identifiers that end
// up in storage keys.
//
// Document and owner ids are embedded directly in BadgerDB keys with ':'
// as the separator, so these validators reject the separator and control
// characters to keep the key space unambiguous.
package validation

import (
	"fmt"
	"regexp"
)

// identifierPattern matches storage-safe identifiers: alphanumerics,
// dots, underscores, and hyphens, 1-128 characters.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,127}$`)

// ValidateDocID validates a document identifier.
//
// Returns an error when the id is empty, overlong, or contains
// characters that would collide with the storage key layout.
func ValidateDocID(docID string) error {
	if docID == "" {
		return fmt.Errorf("docId cannot be empty")
	}
	if !identifierPattern.MatchString(docID) {
		return fmt.Errorf("invalid docId format: %q (must be 1-128 alphanumeric chars, dots, underscores, or hyphens)", docID)
	}
	return nil
}

// ValidateOwner validates an owner identifier using the same rules as
// document ids.
func ValidateOwner(owner string) error {
	if owner == "" {
		return fmt.Errorf("owner cannot be empty")
	}
	if !identifierPattern.MatchString(owner) {
		return fmt.Errorf("invalid owner format: %q (must be 1-128 alphanumeric chars, dots, underscores, or hyphens)", owner)
	}
	return nil
}
