// Package manifest manages a session-scoped shadow copy of a Cargo manifest.
//
// # Overview
//
// A [Sandbox] is opened on the real manifest, copies it to a fixed sibling
// path (Cargo.toml -> Cargo.winch.toml), and from then on only ever edits the
// shadow. The real manifest is written exactly once, by [Sandbox.Commit], and
// only after the caller has verified a successful build:
//
//	sb, err := manifest.Open("Cargo.toml")
//	if err != nil {
//	    return err
//	}
//	defer sb.Discard()
//
//	if _, err := sb.Apply(map[string]string{"serde_json": "2.1.0"}); err != nil {
//	    return err
//	}
//	// ... build against sb.State().ShadowPath ...
//	return sb.Commit()
//
// If the process dies before Commit, the original manifest is untouched; a
// stale shadow file is the only residue and is overwritten by the next Open.
//
// # Editing
//
// [Sandbox.Apply] is a line editor rather than a TOML re-encoder, so comments,
// key order, and formatting outside the edited version fields survive. It
// understands every shape Cargo accepts for a dependency:
//
//	serde = "1.0"
//	serde = { version = "1.0", features = ["derive"] }
//	serde.version = "1.0"
//	[dependencies.serde]
//	version = "1.0"
//
// in [dependencies], [dev-dependencies], [build-dependencies] and their
// [target.'cfg(..)'] variants. Crates that are not declared anywhere are
// added to [dependencies]. Every edit is checked by decoding the result with
// github.com/BurntSushi/toml; edits that do not round-trip, and crates
// inherited from a workspace, fail with errors.ErrCodeParse.
package manifest
