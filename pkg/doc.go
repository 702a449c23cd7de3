// Package pkg provides the libraries behind winch, a tool that repairs a
// Rust project's Cargo.toml by rolling dependency versions back until
// "cargo build" succeeds.
//
// # Overview
//
// The pkg directory is organized by concern:
//
//  1. [engine] - The rollback loop: build, diagnose, substitute, repeat
//  2. [diagnose] - Classification of cargo output into dependency issues
//  3. [candidates] - Ordering of published versions and the tried-set memo
//  4. [manifest] - Shadow manifests, format-preserving edits, atomic commit
//  5. [build] - The cargo build runner
//  6. [report] - Session reports and their stores (file, MongoDB)
//  7. [integrations] - The crates.io API client
//  8. [cache] - Response caches (file, Redis, null)
//  9. [config] - winch.toml loading with environment overrides
//
// # Architecture
//
// The data flow of one session:
//
//	Cargo.toml
//	     ↓
//	[manifest] shadow copy
//	     ↓
//	[build] cargo build ──→ [diagnose] issues
//	     ↑                        ↓
//	[manifest] edits ←── [candidates] next untried version (crates.io)
//	     ↓
//	[report] attempts, outcome, committed versions
//
// The original manifest is only replaced once a build succeeds, and never
// in a dry run.
//
// # Quick Start
//
//	import (
//	    "github.com/matzehuels/winch/pkg/build"
//	    "github.com/matzehuels/winch/pkg/cache"
//	    "github.com/matzehuels/winch/pkg/candidates"
//	    "github.com/matzehuels/winch/pkg/engine"
//	    "github.com/matzehuels/winch/pkg/integrations/crates"
//	)
//
//	client := crates.NewClient(cache.NewNullCache(), 24*time.Hour)
//	resolver := candidates.NewResolver(candidates.NewCratesRegistry(client, false))
//	eng := engine.New(resolver, build.NewCargoRunner("cargo"), engine.Options{MaxRollbacks: 5})
//
//	rep, err := eng.Run(ctx, "Cargo.toml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(rep.Outcome)
//
// # Observability
//
// Hooks in [observability] report attempts, candidate selection, HTTP
// requests and cache lookups without coupling the libraries to a logger.
//
// [engine]: https://pkg.go.dev/github.com/matzehuels/winch/pkg/engine
// [diagnose]: https://pkg.go.dev/github.com/matzehuels/winch/pkg/diagnose
// [candidates]: https://pkg.go.dev/github.com/matzehuels/winch/pkg/candidates
// [manifest]: https://pkg.go.dev/github.com/matzehuels/winch/pkg/manifest
// [build]: https://pkg.go.dev/github.com/matzehuels/winch/pkg/build
// [report]: https://pkg.go.dev/github.com/matzehuels/winch/pkg/report
// [integrations]: https://pkg.go.dev/github.com/matzehuels/winch/pkg/integrations
// [cache]: https://pkg.go.dev/github.com/matzehuels/winch/pkg/cache
// [config]: https://pkg.go.dev/github.com/matzehuels/winch/pkg/config
// [observability]: https://pkg.go.dev/github.com/matzehuels/winch/pkg/observability
package pkg
