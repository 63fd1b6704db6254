package storage

import (
	bolt "go.etcd.io/bbolt"

	"github.com/reactiveui/akavache-go/pkg/model"
	"github.com/reactiveui/akavache-go/pkg/queue"
)

// opResult is what one group produced inside the transaction, to be
// delivered to its sinks only after the transaction has committed.
type opResult struct {
	elements []model.CacheElement
	keys     []string
}

// execute runs every group against tx and returns, per group, the data
// that must later be fanned out to its waiters. It does not touch any
// Sink: delivery happens only after the whole transaction commits, since
// a transaction that later fails must not have told anyone its work
// succeeded.
func (d *Driver) execute(tx *bolt.Tx, groups []*queue.Group) (map[*queue.Group]opResult, error) {
	results := make(map[*queue.Group]opResult, len(groups))

	for _, g := range groups {
		switch g.Kind {
		case queue.BulkInsert:
			if err := d.execInsert(tx, g.Elements); err != nil {
				return nil, err
			}

		case queue.BulkSelectByKey:
			elems, err := d.execSelectByKey(tx, g.Keys)
			if err != nil {
				return nil, err
			}
			results[g] = opResult{elements: elems}

		case queue.BulkSelectByType:
			elems, err := d.execSelectByType(tx, g.Types)
			if err != nil {
				return nil, err
			}
			results[g] = opResult{elements: elems}

		case queue.BulkInvalidateByKey:
			if err := d.execInvalidateByKey(tx, g.Keys); err != nil {
				return nil, err
			}

		case queue.BulkInvalidateByType:
			if err := d.execInvalidateByType(tx, g.Types); err != nil {
				return nil, err
			}

		case queue.InvalidateAll:
			if err := d.execInvalidateAll(tx); err != nil {
				return nil, err
			}

		case queue.DeleteExpired:
			if err := d.execDeleteExpired(tx); err != nil {
				return nil, err
			}

		case queue.GetKeys:
			keys, err := d.execGetKeys(tx)
			if err != nil {
				return nil, err
			}
			results[g] = opResult{keys: keys}

		case queue.Vacuum:
			if err := d.execDeleteExpired(tx); err != nil {
				return nil, err
			}
		}
	}

	return results, nil
}

func (d *Driver) encryptValue(key string, value []byte) ([]byte, error) {
	if d.cipher == nil {
		return value, nil
	}
	return d.cipher.Encrypt(value, []byte(key))
}

func (d *Driver) decryptValue(key string, value []byte) ([]byte, error) {
	if d.cipher == nil {
		return value, nil
	}
	return d.cipher.Decrypt(value, []byte(key))
}

func (d *Driver) execInsert(tx *bolt.Tx, elements []model.CacheElement) error {
	elems := tx.Bucket(bucketElements)
	byType := tx.Bucket(bucketByType)
	byExpiration := tx.Bucket(bucketByExpiration)

	for _, e := range elements {
		// An overwritten key may change type or expiration; drop the stale
		// index entries before writing the new ones.
		if old := elems.Get([]byte(e.Key)); old != nil {
			if prior, err := decodeRecord(e.Key, old); err == nil {
				if prior.TypeName != e.TypeName {
					if err := byType.Delete(typeIndexKey(prior.TypeName, e.Key)); err != nil {
						return err
					}
				}
				if err := byExpiration.Delete(expirationIndexKey(model.Ticks(prior.Expiration), e.Key)); err != nil {
					return err
				}
			}
		}

		value, err := d.encryptValue(e.Key, e.Value)
		if err != nil {
			return err
		}
		stored := e
		stored.Value = value

		data, err := encodeRecord(stored)
		if err != nil {
			return err
		}
		if err := elems.Put([]byte(e.Key), data); err != nil {
			return err
		}
		if e.TypeName != "" {
			if err := byType.Put(typeIndexKey(e.TypeName, e.Key), nil); err != nil {
				return err
			}
		}
		if err := byExpiration.Put(expirationIndexKey(model.Ticks(e.Expiration), e.Key), nil); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) execSelectByKey(tx *bolt.Tx, keys []string) ([]model.CacheElement, error) {
	elems := tx.Bucket(bucketElements)
	var out []model.CacheElement
	for _, k := range keys {
		data := elems.Get([]byte(k))
		if data == nil {
			continue
		}
		e, err := decodeRecord(k, data)
		if err != nil {
			return nil, err
		}
		value, err := d.decryptValue(k, e.Value)
		if err != nil {
			return nil, err
		}
		e.Value = value
		out = append(out, e)
	}
	return out, nil
}

func (d *Driver) execSelectByType(tx *bolt.Tx, types []string) ([]model.CacheElement, error) {
	elems := tx.Bucket(bucketElements)
	byType := tx.Bucket(bucketByType)
	var out []model.CacheElement

	for _, t := range types {
		prefix := typeIndexPrefix(t)
		c := byType.Cursor()
		for idxKey, _ := c.Seek(prefix); idxKey != nil && hasPrefix(idxKey, prefix); idxKey, _ = c.Next() {
			key := keyFromTypeIndexKey(t, idxKey)
			data := elems.Get([]byte(key))
			if data == nil {
				continue
			}
			e, err := decodeRecord(key, data)
			if err != nil {
				return nil, err
			}
			value, err := d.decryptValue(key, e.Value)
			if err != nil {
				return nil, err
			}
			e.Value = value
			out = append(out, e)
		}
	}
	return out, nil
}

func (d *Driver) execInvalidateByKey(tx *bolt.Tx, keys []string) error {
	elems := tx.Bucket(bucketElements)
	byType := tx.Bucket(bucketByType)
	byExpiration := tx.Bucket(bucketByExpiration)
	for _, k := range keys {
		data := elems.Get([]byte(k))
		if data == nil {
			continue
		}
		if e, err := decodeRecord(k, data); err == nil {
			if e.TypeName != "" {
				if err := byType.Delete(typeIndexKey(e.TypeName, k)); err != nil {
					return err
				}
			}
			if err := byExpiration.Delete(expirationIndexKey(model.Ticks(e.Expiration), k)); err != nil {
				return err
			}
		}
		if err := elems.Delete([]byte(k)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) execInvalidateByType(tx *bolt.Tx, types []string) error {
	elems := tx.Bucket(bucketElements)
	byType := tx.Bucket(bucketByType)
	byExpiration := tx.Bucket(bucketByExpiration)

	for _, t := range types {
		prefix := typeIndexPrefix(t)
		c := byType.Cursor()
		var toDelete []model.CacheElement
		for idxKey, _ := c.Seek(prefix); idxKey != nil && hasPrefix(idxKey, prefix); idxKey, _ = c.Next() {
			k := keyFromTypeIndexKey(t, idxKey)
			if data := elems.Get([]byte(k)); data != nil {
				if e, err := decodeRecord(k, data); err == nil {
					toDelete = append(toDelete, e)
				}
			}
		}
		for _, e := range toDelete {
			if err := elems.Delete([]byte(e.Key)); err != nil {
				return err
			}
			if err := byType.Delete(typeIndexKey(t, e.Key)); err != nil {
				return err
			}
			if err := byExpiration.Delete(expirationIndexKey(model.Ticks(e.Expiration), e.Key)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver) execInvalidateAll(tx *bolt.Tx) error {
	for _, b := range [][]byte{bucketElements, bucketByType, bucketByExpiration} {
		if err := tx.DeleteBucket(b); err != nil {
			return err
		}
		if _, err := tx.CreateBucket(b); err != nil {
			return err
		}
	}
	return nil
}

// execDeleteExpired walks the expiration index from its start, which is
// sorted ascending by tick count, and stops at the first entry that is
// still live: everything before that point is expired.
func (d *Driver) execDeleteExpired(tx *bolt.Tx) error {
	elems := tx.Bucket(bucketElements)
	byType := tx.Bucket(bucketByType)
	byExpiration := tx.Bucket(bucketByExpiration)
	now := d.clock.Now()
	nowTicks := model.Ticks(now)

	var expired []model.CacheElement
	c := byExpiration.Cursor()
	for idxKey, _ := c.First(); idxKey != nil; idxKey, _ = c.Next() {
		if decodeIndexTicks(idxKey) >= nowTicks {
			break
		}
		k := keyFromExpirationIndexKey(idxKey)
		if data := elems.Get([]byte(k)); data != nil {
			if e, err := decodeRecord(k, data); err == nil {
				expired = append(expired, e)
			}
		}
	}

	for _, e := range expired {
		if err := elems.Delete([]byte(e.Key)); err != nil {
			return err
		}
		if e.TypeName != "" {
			if err := byType.Delete(typeIndexKey(e.TypeName, e.Key)); err != nil {
				return err
			}
		}
		if err := byExpiration.Delete(expirationIndexKey(model.Ticks(e.Expiration), e.Key)); err != nil {
			return err
		}
	}
	return nil
}

// execGetKeys walks the expiration index starting from the first entry at
// or after now: every entry from there on (including the NeverExpires
// entries, which always sort last) is live.
func (d *Driver) execGetKeys(tx *bolt.Tx) ([]string, error) {
	byExpiration := tx.Bucket(bucketByExpiration)
	now := d.clock.Now()
	seek := encodeTicks(model.Ticks(now))

	var keys []string
	c := byExpiration.Cursor()
	for idxKey, _ := c.Seek(seek); idxKey != nil; idxKey, _ = c.Next() {
		keys = append(keys, keyFromExpirationIndexKey(idxKey))
	}
	return keys, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
