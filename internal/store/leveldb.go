package store

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDBStore is the durable BackingStore, a goleveldb database keyed by
// big-endian (id, version) pairs. Grounded on
// Fantom-foundation/Carmen's backend.OpenLevelDb / LevelDB wrapper, which
// layers a tablespace-prefixed key scheme over the same database; here
// the "tablespace" is simply the fixed-width (id, version) key since this
// store holds exactly one kind of record (a serialized node).
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDBStore opens (creating if absent) a goleveldb database at path.
func OpenLevelDBStore(path string, options *opt.Options) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, options)
	if err != nil {
		return nil, errors.Wrapf(err, "open leveldb store at %s", path)
	}

	return &LevelDBStore{db: db}, nil
}

func encodeKey(id, version uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[0:8], id)
	binary.BigEndian.PutUint64(key[8:16], version)
	return key
}

func (s *LevelDBStore) Allocate(id, version uint64) error {
	key := encodeKey(id, version)

	_, err := s.db.Get(key, nil)
	switch {
	case err == nil:
		// Idempotent: already allocated.
		return nil
	case errors.Is(err, leveldb.ErrNotFound):
		return errors.Wrapf(s.db.Put(key, nil, nil), "allocate id=%d version=%d", id, version)
	default:
		return errors.Wrapf(err, "allocate id=%d version=%d", id, version)
	}
}

func (s *LevelDBStore) Get(id, version uint64) (*Handle, error) {
	key := encodeKey(id, version)

	bytes, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "id=%d version=%d", id, version)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get id=%d version=%d", id, version)
	}

	cp := make([]byte, len(bytes))
	copy(cp, bytes)

	return &Handle{ID: id, Version: version, Bytes: cp}, nil
}

func (s *LevelDBStore) Put(h *Handle) error {
	key := encodeKey(h.ID, h.Version)
	return errors.Wrapf(s.db.Put(key, h.Bytes, nil), "put id=%d version=%d", h.ID, h.Version)
}

func (s *LevelDBStore) Deallocate(id, version uint64) error {
	key := encodeKey(id, version)
	return errors.Wrapf(s.db.Delete(key, nil), "deallocate id=%d version=%d", id, version)
}

func (s *LevelDBStore) Close() error {
	return errors.Wrap(s.db.Close(), "close leveldb store")
}
