// Package ir provides the shared value and record types for bindery.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - attribute numbers are int64
//   - Attribute equality is canonical-JSON equality (RFC 8785)
//   - All JSON tags use snake_case
//   - ChangeRecord travels next to an Entity, never inside it
package ir
