// Package textutil implements utilities for handling human-readable text.
//
// This package includes a combination of low-level and high-level utilities.
// The main high-level utility is:
//   NewUTF8LineWriter: Line-based text formatter.
package textutil
