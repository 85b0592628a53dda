package store

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/verte-zerg/keyprint/internal/features"
	"github.com/verte-zerg/keyprint/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "keyprint.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func sampleVector(dwellE, th float64) features.FeatureVector {
	fv := features.NewFeatureVector()
	fv.Dwell[features.KeyE] = dwellE
	fv.Digraph[features.DigraphTH] = th
	fv.TypingRate = 5.5
	return fv
}

func TestInsertAndListSamples(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	at := time.Unix(1700000000, 0).UTC()

	inputs := []model.Sample{
		{UserID: "bob", DisplayName: "Bob", CreatedAt: at, Source: "tui", Features: sampleVector(0.09, 0.3)},
		{UserID: "alice", CreatedAt: at, Source: "evdev", Features: sampleVector(0.08, 0.25)},
		{UserID: "bob", CreatedAt: at, Source: "tui", Features: sampleVector(0.11, 0.32)},
	}
	var ids []string
	for _, in := range inputs {
		id, err := st.InsertSample(ctx, in)
		if err != nil {
			t.Fatalf("insert sample: %v", err)
		}
		if id == "" {
			t.Fatalf("expected generated sample id")
		}
		ids = append(ids, id)
	}

	samples, err := st.ListSamples(ctx)
	if err != nil {
		t.Fatalf("list samples: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	// Grouped by user in registration order, then by insertion order.
	gotIDs := []string{samples[0].ID, samples[1].ID, samples[2].ID}
	if !slices.Equal(gotIDs, []string{ids[0], ids[2], ids[1]}) {
		t.Fatalf("unexpected sample order: %v", gotIDs)
	}
	if samples[0].DisplayName != "Bob" || samples[2].DisplayName != "alice" {
		t.Fatalf("unexpected display names: %q %q", samples[0].DisplayName, samples[2].DisplayName)
	}
	if got := samples[1].Features.Digraph[features.DigraphTH]; got != 0.32 {
		t.Fatalf("expected th latency 0.32, got %v", got)
	}
	if got := samples[2].Features.TypingRate; got != 5.5 {
		t.Fatalf("expected typing rate 5.5, got %v", got)
	}
	if !samples[0].CreatedAt.Equal(at) {
		t.Fatalf("unexpected created_at: %v", samples[0].CreatedAt)
	}

	only, err := st.ListSamples(ctx, "alice")
	if err != nil {
		t.Fatalf("list alice: %v", err)
	}
	if len(only) != 1 || only[0].Source != "evdev" {
		t.Fatalf("unexpected alice samples: %+v", only)
	}
}

func TestListUsersCountsSamples(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	for _, user := range []string{"carol", "dave", "carol"} {
		if _, err := st.InsertSample(ctx, model.Sample{UserID: user, Source: "tui", Features: sampleVector(0.1, 0.2)}); err != nil {
			t.Fatalf("insert sample: %v", err)
		}
	}
	users, err := st.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[0].UserID != "carol" || users[0].Samples != 2 {
		t.Fatalf("unexpected first user: %+v", users[0])
	}
	if users[1].UserID != "dave" || users[1].Samples != 1 {
		t.Fatalf("unexpected second user: %+v", users[1])
	}
}

func TestDeleteUser(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	for _, user := range []string{"alice", "bob"} {
		if _, err := st.InsertSample(ctx, model.Sample{UserID: user, Source: "tui", Features: sampleVector(0.1, 0.2)}); err != nil {
			t.Fatalf("insert sample: %v", err)
		}
	}
	if err := st.DeleteUser(ctx, "alice"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if err := st.DeleteUser(ctx, "alice"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	samples, err := st.ListSamples(ctx)
	if err != nil {
		t.Fatalf("list samples: %v", err)
	}
	if len(samples) != 1 || samples[0].UserID != "bob" {
		t.Fatalf("unexpected remaining samples: %+v", samples)
	}
}

func TestLoadProfiles(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	inserts := []struct {
		user string
		fv   features.FeatureVector
	}{
		{"alice", sampleVector(0.08, 0.24)},
		{"bob", sampleVector(0.10, 0.30)},
		{"alice", sampleVector(0.10, 0.26)},
	}
	for _, in := range inserts {
		if _, err := st.InsertSample(ctx, model.Sample{UserID: in.user, Source: "tui", Features: in.fv}); err != nil {
			t.Fatalf("insert sample: %v", err)
		}
	}

	profiles, err := st.LoadProfiles(ctx)
	if err != nil {
		t.Fatalf("load profiles: %v", err)
	}
	users := slices.Collect(profiles.Users())
	if !slices.Equal(users, []string{"alice", "bob"}) {
		t.Fatalf("unexpected users: %v", users)
	}
	sig, err := profiles.Signature("alice")
	if err != nil {
		t.Fatalf("signature: %v", err)
	}
	if got := sig.Dwell[features.KeyE]; got < 0.0899 || got > 0.0901 {
		t.Fatalf("expected averaged dwell 0.09, got %v", got)
	}
}

func TestInsertSampleRequiresUser(t *testing.T) {
	st := openTemp(t)
	if _, err := st.InsertSample(context.Background(), model.Sample{Features: sampleVector(0.1, 0.2)}); err == nil {
		t.Fatalf("expected error for missing user id")
	}
}

func TestInsertSamplesIsAllOrNothing(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	storedID, err := st.InsertSample(ctx, model.Sample{UserID: "alice", Source: "tui", Features: sampleVector(0.08, 0.25)})
	if err != nil {
		t.Fatalf("insert sample: %v", err)
	}

	batch := []model.Sample{
		{UserID: "bob", Source: "import", Features: sampleVector(0.1, 0.3)},
		{ID: storedID, UserID: "alice", Source: "import", Features: sampleVector(0.08, 0.25)},
		{UserID: "carol", Source: "import", Features: sampleVector(0.12, 0.35)},
	}
	if _, err := st.InsertSamples(ctx, batch, false); !errors.Is(err, ErrSampleExists) {
		t.Fatalf("expected ErrSampleExists, got %v", err)
	}
	samples, err := st.ListSamples(ctx)
	if err != nil {
		t.Fatalf("list samples: %v", err)
	}
	if len(samples) != 1 || samples[0].ID != storedID {
		t.Fatalf("expected only the original sample, got %+v", samples)
	}
	users, err := st.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected rejected batch to add no users, got %+v", users)
	}
}

func TestInsertSamplesSkipsExisting(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	storedID, err := st.InsertSample(ctx, model.Sample{UserID: "alice", Source: "tui", Features: sampleVector(0.08, 0.25)})
	if err != nil {
		t.Fatalf("insert sample: %v", err)
	}

	batch := []model.Sample{
		{UserID: "bob", Source: "import", Features: sampleVector(0.1, 0.3)},
		{ID: storedID, UserID: "alice", Source: "import", Features: sampleVector(0.5, 0.5)},
	}
	n, err := st.InsertSamples(ctx, batch, true)
	if err != nil {
		t.Fatalf("insert samples: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 sample written, got %d", n)
	}
	samples, err := st.ListSamples(ctx)
	if err != nil {
		t.Fatalf("list samples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].ID != storedID || samples[0].Source != "tui" {
		t.Fatalf("existing sample was overwritten: %+v", samples[0])
	}
	if samples[1].UserID != "bob" || batch[0].ID == "" {
		t.Fatalf("unexpected imported sample: %+v", samples[1])
	}
}
