package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": db,
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Key(""))
	assert.Len(t, Key("click login"), 64)
	assert.NotEqual(t, Key("click login"), Key("click logout"))
}

func TestActions(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id := Key("search for jobs")
			_, err := s.Action(ctx, id)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.RecordAction(ctx, ActionRecord{ID: id, Session: "s1", Action: "search for jobs", URL: "https://a.test"}))
			rec, err := s.Action(ctx, id)
			require.NoError(t, err)
			assert.Empty(t, rec.Result)

			require.NoError(t, s.RecordAction(ctx, ActionRecord{ID: id, Session: "s1", Action: "search for jobs", Result: "done", URL: "https://a.test/jobs"}))
			rec, err = s.Action(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "done", rec.Result)
			assert.Equal(t, "https://a.test/jobs", rec.URL)
		})
	}
}

func TestObservations(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			login := ObservationRecord{
				ID: Key("/html[1]/body[1]/button[1]"), Session: "s1", Description: "login button",
				Locator: []string{"/html[1]/body[1]/button[1]", "//*[@id='login']"}, CreatedAt: base,
			}
			search := ObservationRecord{
				ID: Key("/html[1]/body[1]/input[1]"), Session: "s1", Description: "search box",
				Locator: []string{"/html[1]/body[1]/input[1]"}, CreatedAt: base.Add(time.Second),
			}
			other := ObservationRecord{ID: Key("x"), Session: "s2", Locator: []string{"x"}, CreatedAt: base}
			for _, rec := range []ObservationRecord{search, login, other} {
				require.NoError(t, s.RecordObservation(ctx, rec))
			}

			got, err := s.Observations(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "login button", got[0].Description)
			assert.Equal(t, login.Locator, got[0].Locator)
			assert.Equal(t, "search box", got[1].Description)

			all, err := s.Observations(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestOpenDefaultsToMemory(t *testing.T) {
	s, err := Open(context.Background(), "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)
}
