// Package ir provides the canonical document types for specforge.
//
// This package contains type definitions, the JSON value model, and
// canonical serialization. All other internal packages import ir; ir
// imports nothing internal. This keeps ir the foundational layer with
// no circular dependencies.
//
// Key design constraints:
//   - Untrusted documents are IRValue trees; DesignSpec structs exist only
//     for documents that passed structural validation
//   - MarshalCanonical is the only serialization used for hashing
//   - All JSON tags use lowerCamelCase to match the DesignSpec wire format
//   - SpecSession history is append-only with a logical seq per entry
package ir
