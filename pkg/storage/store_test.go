package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/canopy/pkg/types"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	bolt, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })

	return map[string]Store{
		"bolt":   bolt,
		"memory": NewMemoryStore(),
	}
}

func TestSessionCRUD(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now().UTC().Truncate(time.Second)
			session := &types.Session{
				ID:         "abc",
				Status:     types.SessionStatusActive,
				RemoteAddr: "10.0.0.1",
				Roots:      1,
				CreatedAt:  now,
				LastAccess: now,
			}
			require.NoError(t, store.SaveSession(session))

			got, err := store.GetSession("abc")
			require.NoError(t, err)
			assert.Equal(t, session.RemoteAddr, got.RemoteAddr)
			assert.True(t, session.CreatedAt.Equal(got.CreatedAt))

			// Upsert
			session.Status = types.SessionStatusExpired
			session.EndedAt = now
			require.NoError(t, store.SaveSession(session))
			got, err = store.GetSession("abc")
			require.NoError(t, err)
			assert.Equal(t, types.SessionStatusExpired, got.Status)
			assert.True(t, got.Ended())

			require.NoError(t, store.DeleteSession("abc"))
			_, err = store.GetSession("abc")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, store.Ping())
		})
	}
}

func TestListSessionsOrdered(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().UTC()
			for i, id := range []string{"c", "a", "b"} {
				require.NoError(t, store.SaveSession(&types.Session{
					ID:        id,
					Status:    types.SessionStatusActive,
					CreatedAt: base.Add(time.Duration(i) * time.Minute),
				}))
			}

			sessions, err := store.ListSessions()
			require.NoError(t, err)
			require.Len(t, sessions, 3)
			assert.Equal(t, "c", sessions[0].ID)
			assert.Equal(t, "a", sessions[1].ID)
			assert.Equal(t, "b", sessions[2].ID)
		})
	}
}

func TestPruneSessions(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now().UTC()
			records := []*types.Session{
				{ID: "old-expired", Status: types.SessionStatusExpired, EndedAt: now.Add(-48 * time.Hour)},
				{ID: "old-closed", Status: types.SessionStatusClosed, EndedAt: now.Add(-25 * time.Hour)},
				{ID: "recent", Status: types.SessionStatusExpired, EndedAt: now.Add(-time.Hour)},
				{ID: "active", Status: types.SessionStatusActive},
			}
			for _, r := range records {
				require.NoError(t, store.SaveSession(r))
			}

			removed, err := store.PruneSessions(now.Add(-24 * time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			sessions, err := store.ListSessions()
			require.NoError(t, err)
			ids := make([]string, 0, len(sessions))
			for _, s := range sessions {
				ids = append(ids, s.ID)
			}
			assert.ElementsMatch(t, []string{"recent", "active"}, ids)
		})
	}
}

func TestReadOnlyBoltStore(t *testing.T) {
	dir := t.TempDir()
	rw, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, rw.SaveSession(&types.Session{ID: "x", Status: types.SessionStatusActive}))
	require.NoError(t, rw.Close())

	ro, err := OpenBoltStore(dir+"/"+DatabaseFile, true)
	require.NoError(t, err)
	defer ro.Close()

	sessions, err := ro.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "x", sessions[0].ID)
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())
	assert.Error(t, store.Ping())
	assert.Error(t, store.SaveSession(&types.Session{ID: "x"}))
}
