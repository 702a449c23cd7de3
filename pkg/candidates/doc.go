// Package candidates proposes replacement versions for diagnosed crates.
//
// A [Resolver] asks a [Registry] for the published versions of a crate once
// per session, drops yanked releases, orders the rest newest first (stable
// releases before pre-releases, per semantic versioning) and hands out the
// first version the session has not tried yet:
//
//	r := candidates.NewResolver(candidates.NewCratesRegistry(client, false))
//
//	var tried candidates.Tried
//	c, err := r.Next(ctx, "serde_json", tried)
//	switch {
//	case errors.Is(err, candidates.ErrExhausted):
//	    // nothing left to try for this crate
//	case err != nil:
//	    // registry unreachable; retry later
//	default:
//	    tried.Add(c.Crate, c.Version)
//	}
//
// The [Tried] set is owned by the caller and passed in on every call, so the
// Resolver itself holds nothing but its read-through cache.
package candidates
