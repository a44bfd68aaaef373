// Package users resolves display info (username, avatar) for story authors,
// reactors and commenters from the user service.
package users

import (
	"context"
	"sort"

	"github.com/beunreal/story-service/internal/domain"
)

// Directory looks up display info for a set of user ids. Unknown users are
// absent from the result. On error the map may still hold partial results.
type Directory interface {
	Lookup(ctx context.Context, ids []string) (map[string]domain.UserInfo, error)
}

// Static is a fixed in-process directory, used when no user service is
// configured.
type Static map[string]domain.UserInfo

func (s Static) Lookup(_ context.Context, ids []string) (map[string]domain.UserInfo, error) {
	out := make(map[string]domain.UserInfo, len(ids))
	for _, id := range ids {
		if u, ok := s[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

// uniqueSorted drops empties and duplicates so cache keys and upstream calls
// are issued in a stable order.
func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
