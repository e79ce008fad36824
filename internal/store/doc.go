// Package store provides SQLite-backed storage for bindery entities and
// active subscriptions.
//
// The store holds two tables:
//   - Entities: one row per (resource, id) with canonical JSON attributes
//   - Subscriptions: group memberships of live connections
//
// # Ordering
//
//   - All ordering uses logical clock values, NEVER timestamps
//   - Entity lists use: ORDER BY created_seq ASC, id ASC COLLATE BINARY
//   - Subscription reads use: ORDER BY seq ASC, id ASC COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Attributes are serialized with ir.MarshalCanonical, so two entities with
// equal attributes have byte-identical rows.
package store
