package storage

import (
	"os"

	bolt "go.etcd.io/bbolt"
)

// Defrag reclaims space bbolt's free list has not returned to the
// filesystem: it copies every live page into a fresh file via bbolt's own
// Tx.Copy and swaps it into place, the same copy-and-swap shape etcd's
// backend uses for its own defragmentation. Unlike DeleteExpired (a
// prepared operation run through the normal op queue), Defrag takes the
// write lock directly since it rewrites the whole file.
func (d *Driver) Defrag() error {
	tmpPath := d.path + ".defrag"

	err := d.db.View(func(tx *bolt.Tx) error {
		f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		return tx.Copy(f)
	})
	if err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := d.db.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, d.path); err != nil {
		return err
	}

	db, err := bolt.Open(d.path, 0o600, nil)
	if err != nil {
		return err
	}
	d.db = db
	return nil
}
