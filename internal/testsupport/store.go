package testsupport

import (
	"context"
	"testing"

	"binky/internal/config"
	"binky/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// AddEpisode registers an episode with the given audio url.
func AddEpisode(t testing.TB, st *store.Store, title, audioURL string) *store.Episode {
	t.Helper()

	episode, err := st.AddEpisode(context.Background(), store.NewEpisode{Title: title, AudioURL: audioURL})
	if err != nil {
		t.Fatalf("store.AddEpisode: %v", err)
	}
	return episode
}

// MustEpisode reloads an episode and fails the test when it is missing.
func MustEpisode(t testing.TB, st *store.Store, id int64) *store.Episode {
	t.Helper()

	episode, err := st.GetEpisode(context.Background(), id)
	if err != nil {
		t.Fatalf("store.GetEpisode: %v", err)
	}
	if episode == nil {
		t.Fatalf("episode %d not found", id)
	}
	return episode
}
