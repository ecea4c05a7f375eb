// Package textutil provides text processing utilities for filename
// sanitization and storage object naming.
//
// Upload filenames arrive from end users and flow into storage paths and
// staging directories; these helpers make them safe for both.
package textutil
