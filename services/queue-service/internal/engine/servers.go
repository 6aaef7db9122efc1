package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
)

// EligibleServers returns the shop's active servers ordered by id. With requirePresent
// only servers on the floor today are returned.
func (s *Service) EligibleServers(ctx context.Context, shopID string, requirePresent bool) ([]model.Server, error) {
	all, err := s.store.ListServers(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	out := make([]model.Server, 0, len(all))
	for _, srv := range all {
		if srv.ShopID != "" && srv.ShopID != shopID {
			continue
		}
		if !srv.IsActive {
			continue
		}
		if requirePresent && !srv.IsPresent {
			continue
		}
		out = append(out, srv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// workingServers is the server count used by live estimates, never below 1.
func (s *Service) workingServers(ctx context.Context, shopID string) (int, error) {
	servers, err := s.EligibleServers(ctx, shopID, true)
	if err != nil {
		return 0, err
	}
	if len(servers) == 0 {
		return 1, nil
	}
	return len(servers), nil
}
