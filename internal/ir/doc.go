// Package ir provides the foundational types for strata.
//
// This package contains the document tree values, the copy-on-write
// transaction used by a single reduce call, the schema entry model and the
// closed set of actions. All other internal packages import ir; ir imports
// nothing internal.
//
// Key design constraints:
//   - Integral numbers are Int (int64); Float only holds what Int cannot
//   - Null stands in for "undefined" (formula placeholders, absent originals)
//   - Trees are immutable once committed; mutation happens only inside a Txn
package ir
