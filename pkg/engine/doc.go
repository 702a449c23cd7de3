// Package engine repairs a Cargo manifest by rolling dependency versions
// back until the project builds.
//
// A session works on a shadow copy of the manifest. It builds the shadow,
// classifies the failure with [diagnose.Parse], asks the [Resolver] for the
// next untried version of every crate the failure names, applies them
// together and builds again. It stops when:
//
//   - the build succeeds ([report.Resolved]); the shadow is then committed
//     over the original unless the run is a dry run or nothing was changed
//   - no diagnosed crate has an untried candidate left within
//     [Options.MaxRollbacks] ([report.Exhausted])
//   - the failure names no dependency ([report.Unresolvable])
//   - the manifest cannot be read or edited, the build runner cannot be
//     started, or ctx is done ([report.Aborted], returned with an error)
//
// The original manifest is only ever replaced atomically, and only on a
// committed success. Every attempt is recorded in the returned
// [report.Report].
//
// Usage:
//
//	resolver := candidates.NewResolver(candidates.NewCratesRegistry(client, false))
//	eng := engine.New(resolver, build.NewCargoRunner(""), engine.Options{MaxRollbacks: 5})
//	rep, err := eng.Run(ctx, "Cargo.toml")
package engine
