// Package build invokes the external build tool.
//
// The [Runner] interface is the only thing the resolution engine knows about
// compiling a project: given a manifest path it returns success or failure
// plus the raw diagnostic text. [CargoRunner] implements it with cargo.
//
// A compilation failure is a normal [Result]; only a runner that cannot be
// used at all (binary missing, staging failed, process could not start)
// returns an errors.ErrCodeBuildRunner error.
package build
