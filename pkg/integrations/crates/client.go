package crates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matzehuels/winch/pkg/buildinfo"
	"github.com/matzehuels/winch/pkg/cache"
	"github.com/matzehuels/winch/pkg/integrations"
)

// DefaultBaseURL is the crates.io API root.
const DefaultBaseURL = "https://crates.io/api/v1"

// Version is one published release of a crate.
type Version struct {
	Num    string `json:"num"`    // Version string (e.g., "1.0.193")
	Yanked bool   `json:"yanked"` // Yanked releases must not be proposed as fixes
}

// CrateVersions holds the published versions of a crate in registry order
// (crates.io returns newest first, but callers must not rely on it).
type CrateVersions struct {
	Name       string    `json:"name"`
	MaxVersion string    `json:"max_version"`
	Versions   []Version `json:"versions"`
}

// Client provides access to the crates.io package registry API.
// It handles HTTP requests with caching and automatic retries.
//
// All methods are safe for concurrent use by multiple goroutines.
//
// Note: crates.io requires a User-Agent header; this client sets one automatically.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a crates.io client with the given cache backend.
//
// Parameters:
//   - backend: Cache backend for HTTP response caching (use cache.NewNullCache() for no caching)
//   - cacheTTL: How long responses are cached (typical: 1-24 hours)
func NewClient(backend cache.Cache, cacheTTL time.Duration) *Client {
	return NewClientWithBaseURL(backend, cacheTTL, DefaultBaseURL)
}

// NewClientWithBaseURL creates a client against a crates.io-compatible API
// (mirrors, alternative registries exposing the same endpoints).
func NewClientWithBaseURL(backend cache.Cache, cacheTTL time.Duration, baseURL string) *Client {
	headers := map[string]string{
		"User-Agent": buildinfo.UserAgent(),
	}
	return &Client{
		Client:  integrations.NewClient(backend, "crates:", cacheTTL, headers),
		baseURL: baseURL,
	}
}

// FetchVersions retrieves every published version of a crate.
//
// If refresh is true, the cache is bypassed and a fresh API call is made.
//
// Returns:
//   - [integrations.ErrNotFound] (wrapped) if the crate doesn't exist
//   - [integrations.ErrNetwork] (wrapped) for HTTP failures after retries
//   - Other errors for JSON decoding failures
func (c *Client) FetchVersions(ctx context.Context, crate string, refresh bool) (*CrateVersions, error) {
	var info CrateVersions
	err := c.Cached(ctx, crate, refresh, &info, func() error {
		return c.fetch(ctx, crate, &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) fetch(ctx context.Context, crate string, info *CrateVersions) error {
	var data crateResponse
	url := fmt.Sprintf("%s/crates/%s", c.baseURL, integrations.URLEncode(crate))
	if err := c.Get(ctx, url, &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: crate %s", err, crate)
		}
		return err
	}

	*info = CrateVersions{
		Name:       data.Crate.Name,
		MaxVersion: data.Crate.MaxVersion,
		Versions:   make([]Version, 0, len(data.Versions)),
	}
	for _, v := range data.Versions {
		info.Versions = append(info.Versions, Version{Num: v.Num, Yanked: v.Yanked})
	}
	return nil
}

type crateResponse struct {
	Crate struct {
		Name       string `json:"name"`
		MaxVersion string `json:"max_version"`
	} `json:"crate"`
	Versions []struct {
		Num    string `json:"num"`
		Yanked bool   `json:"yanked"`
	} `json:"versions"`
}
