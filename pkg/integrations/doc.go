// Package integrations provides HTTP clients for package registry APIs.
//
// # Overview
//
// The [Client] type carries the shared HTTP plumbing; registry-specific
// clients live in subpackages:
//
//   - [crates]: Rust crates.io
//
// # Client Pattern
//
// Registry clients embed [Client] and follow a consistent shape:
//
//	client := crates.NewClient(backend, 24*time.Hour)
//	versions, err := client.FetchVersions(ctx, "serde", false)  // false = use cache
//
// Clients handle:
//   - HTTP requests with retry for transient failures (network errors, 429, 5xx)
//   - Response caching through any [cache.Cache] backend
//   - API-specific parsing and normalization
//
// # Errors
//
// A 404 surfaces as [ErrNotFound]; everything else that goes wrong on the
// wire surfaces as [ErrNetwork]. Callers use errors.Is to tell them apart.
//
// [crates]: github.com/matzehuels/winch/pkg/integrations/crates
// [cache.Cache]: github.com/matzehuels/winch/pkg/cache.Cache
package integrations
