// Package types provides core types used across the liverelay service.
// This package has ZERO dependencies on other liverelay packages to avoid circular imports.
// All other packages should import types from here.
package types
