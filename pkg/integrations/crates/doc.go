// Package crates provides an HTTP client for the crates.io API.
//
// # Overview
//
// This package fetches the list of published versions of a crate from
// crates.io (https://crates.io), the Rust community's package registry.
//
// # Usage
//
//	client := crates.NewClient(backend, 24*time.Hour)
//
//	info, err := client.FetchVersions(ctx, "serde", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, v := range info.Versions {
//	    fmt.Println(v.Num, v.Yanked)
//	}
//
// # Caching
//
// Responses are cached to reduce load on crates.io. The cache TTL is set
// when creating the client. Pass refresh=true to bypass the cache.
//
// # User-Agent
//
// The client includes a User-Agent header as requested by crates.io policy.
package crates
