package candidates

import (
	"context"
	"errors"
	"fmt"

	werrors "github.com/matzehuels/winch/pkg/errors"
	"github.com/matzehuels/winch/pkg/integrations"
	"github.com/matzehuels/winch/pkg/integrations/crates"
)

type cratesRegistry struct {
	client  *crates.Client
	refresh bool
}

// NewCratesRegistry adapts a crates.io client to the Registry interface.
// If refresh is true, cached version lists are bypassed.
func NewCratesRegistry(client *crates.Client, refresh bool) Registry {
	return &cratesRegistry{client: client, refresh: refresh}
}

func (r *cratesRegistry) Versions(ctx context.Context, crate string) ([]Release, error) {
	if err := werrors.ValidateCratesPackageName(crate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	info, err := r.client.FetchVersions(ctx, crate, r.refresh)
	if errors.Is(err, integrations.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, crate)
	}
	if err != nil {
		return nil, err
	}

	releases := make([]Release, len(info.Versions))
	for i, v := range info.Versions {
		releases[i] = Release{Version: v.Num, Yanked: v.Yanked}
	}
	return releases, nil
}
