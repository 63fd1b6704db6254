package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"

	"github.com/reactiveui/akavache-go/pkg/model"
)

// Bucket layout, one database file per cache instance, following the
// teacher's "one top-level bucket per entity, JSON-encoded value" pattern.
var (
	bucketElements     = []byte("cache_elements")
	bucketByType       = []byte("cache_index_type")
	bucketByExpiration = []byte("cache_index_expiration")
	bucketMeta         = []byte("meta")

	metaSchemaVersionKey  = []byte("schema_version")
	schemaVersion         = []byte("1")
	metaInstallationIDKey = []byte("installation_id")
)

// record is the on-disk encoding of a model.CacheElement. Expiration and
// CreatedAt are stored as tick counts (int64) rather than time.Time so the
// encoding is stable across Go's time.Time wire-format changes.
type record struct {
	TypeName   string `json:"type_name,omitempty"`
	Value      []byte `json:"value"`
	Expiration int64  `json:"expiration"`
	CreatedAt  int64  `json:"created_at"`
}

func encodeRecord(e model.CacheElement) ([]byte, error) {
	r := record{
		TypeName:   e.TypeName,
		Value:      e.Value,
		Expiration: model.Ticks(e.Expiration),
		CreatedAt:  model.Ticks(e.CreatedAt),
	}
	return json.Marshal(r)
}

func decodeRecord(key string, data []byte) (model.CacheElement, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return model.CacheElement{}, err
	}
	return model.CacheElement{
		Key:        key,
		TypeName:   r.TypeName,
		Value:      r.Value,
		Expiration: model.FromTicks(r.Expiration),
		CreatedAt:  model.FromTicks(r.CreatedAt),
	}, nil
}

// typeIndexKey builds the cache_index_type key for (typeName, key): a
// composite key so a cursor prefix-scan on typeName lists every key of
// that type without a full cache_elements scan.
func typeIndexKey(typeName, key string) []byte {
	buf := make([]byte, 0, len(typeName)+1+len(key))
	buf = append(buf, typeName...)
	buf = append(buf, 0)
	buf = append(buf, key...)
	return buf
}

func typeIndexPrefix(typeName string) []byte {
	buf := make([]byte, 0, len(typeName)+1)
	buf = append(buf, typeName...)
	buf = append(buf, 0)
	return buf
}

func keyFromTypeIndexKey(typeName string, idxKey []byte) string {
	return string(bytes.TrimPrefix(idxKey, typeIndexPrefix(typeName)))
}

// encodeTicks is an order-preserving big-endian encoding of a signed tick
// count: flipping the sign bit maps the full int64 range onto an unsigned
// range that sorts identically, so a bbolt cursor walking byExpiration in
// key order visits entries in expiration order.
func encodeTicks(ticks int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(ticks)^(1<<63))
	return buf
}

// expirationIndexKey builds the cache_index_expiration key for (ticks,
// key): ticks first so the bucket sorts by expiration, key appended to
// keep entries with equal expiration distinct.
func expirationIndexKey(ticks int64, key string) []byte {
	buf := encodeTicks(ticks)
	return append(buf, key...)
}

func keyFromExpirationIndexKey(idxKey []byte) string {
	if len(idxKey) <= 8 {
		return ""
	}
	return string(idxKey[8:])
}

func decodeIndexTicks(idxKey []byte) int64 {
	return int64(binary.BigEndian.Uint64(idxKey[:8]) ^ (1 << 63))
}
