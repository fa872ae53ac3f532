// Package directory holds the ADS 2.0 user directory: a read-only mapping from
// a 2.0 account email to the S3 key of that user's exported library bundle.
//
// The mapping is loaded from object storage at startup and replaced wholesale
// on refresh. Readers see either the previous snapshot or the new one, never a
// partially built map; "not loaded" is a distinct state, not an empty mapping.
package directory

import "sync/atomic"

// snapshot is an immutable view of the directory. Once published it is never
// mutated.
type snapshot struct {
	users map[string]string
}

// Directory is the atomically-swappable holder of the current snapshot. The
// zero value is valid and reports unloaded.
type Directory struct {
	current atomic.Pointer[snapshot]
}

// Replace publishes a new snapshot built from users. The map is owned by the
// Directory after this call and must not be mutated by the caller.
func (d *Directory) Replace(users map[string]string) {
	d.current.Store(&snapshot{users: users})
}

// Loaded reports whether any snapshot has been published yet.
func (d *Directory) Loaded() bool {
	return d.current.Load() != nil
}

// Lookup resolves a 2.0 email to its bundle key. The second return is false
// when the email has no bundle; calling Lookup on an unloaded directory also
// returns false, but callers must check Loaded first to tell the two apart.
func (d *Directory) Lookup(email string) (string, bool) {
	snap := d.current.Load()
	if snap == nil {
		return "", false
	}
	key, ok := snap.users[email]
	return key, ok
}

// Len returns the number of directory entries, zero when unloaded.
func (d *Directory) Len() int {
	snap := d.current.Load()
	if snap == nil {
		return 0
	}
	return len(snap.users)
}
