package stats

import (
	"context"

	"github.com/verte-zerg/keyprint/internal/model"
	"github.com/verte-zerg/keyprint/internal/store"
)

// Report contains the stored users and their samples, grouped by user.
type Report struct {
	Users   []model.UserSummary
	Samples map[string][]model.Sample
}

// BuildReport loads users and samples for rendering. With userIDs set only
// those users are loaded.
func BuildReport(ctx context.Context, st *store.Store, userIDs ...string) (Report, error) {
	users, err := st.ListUsers(ctx)
	if err != nil {
		return Report{}, err
	}
	if len(userIDs) > 0 {
		wanted := make(map[string]struct{}, len(userIDs))
		for _, id := range userIDs {
			wanted[id] = struct{}{}
		}
		filtered := users[:0]
		for _, u := range users {
			if _, ok := wanted[u.UserID]; ok {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}

	samples, err := st.ListSamples(ctx, userIDs...)
	if err != nil {
		return Report{}, err
	}
	grouped := make(map[string][]model.Sample, len(users))
	for _, s := range samples {
		grouped[s.UserID] = append(grouped[s.UserID], s)
	}
	return Report{Users: users, Samples: grouped}, nil
}

// User returns the summary for one user, if loaded.
func (r Report) User(userID string) (model.UserSummary, bool) {
	for _, u := range r.Users {
		if u.UserID == userID {
			return u, true
		}
	}
	return model.UserSummary{}, false
}
