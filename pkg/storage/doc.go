/*
Package storage persists session records.

A record is written when a session starts and again when it ends. The
records let a restarted server answer requests for sessions it no longer
holds with "session expired" instead of silently starting a new one, and
back the `canopy sessions` command.

# Backends

BoltStore keeps records in a single bbolt file, <dataDir>/canopy.db, with
one bucket keyed by session id and values encoded as JSON:

	store, err := storage.NewBoltStore("/var/lib/canopy")
	if err != nil {
		return err
	}
	defer store.Close()

bbolt takes an exclusive file lock, so a second process can only open the
file read-only with OpenBoltStore(path, true) once the server is gone.

MemoryStore keeps records in a map and is used by tests and by servers
that do not need records to survive a restart.

# Retention

Ended sessions accumulate. PruneSessions deletes records of sessions that
ended before a cutoff; the manager's sweeper calls it with the configured
retention. Active records are never pruned.
*/
package storage
