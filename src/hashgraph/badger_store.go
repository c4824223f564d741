package hashgraph

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger"
	cm "github.com/mosaicnetworks/dagsync/src/common"
	"github.com/ugorji/go/codec"
)

const (
	eventPrefix = "evt"
	topoPrefix  = "topo"
	windowKey   = "window"
)

// BadgerStore implements the Store interface on top of a badger database,
// with an InmemStore in front of it as a cache.
type BadgerStore struct {
	sync.Mutex

	inmemStore    *InmemStore
	db            *badger.DB
	path          string
	topoIndex     int
	needBootstrap bool
}

// NewBadgerStore creates a brand new Store with a new database.
func NewBadgerStore(cacheSize int, path string) (*BadgerStore, error) {
	handle, err := openBadger(path)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{
		inmemStore: NewInmemStore(cacheSize),
		db:         handle,
		path:       path,
	}, nil
}

// LoadBadgerStore creates a Store from an existing database.
func LoadBadgerStore(cacheSize int, path string) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	handle, err := openBadger(path)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore:    NewInmemStore(cacheSize),
		db:            handle,
		path:          path,
		needBootstrap: true,
	}

	count, err := store.dbCountTopological()
	if err != nil {
		handle.Close()
		return nil, err
	}
	store.topoIndex = count

	return store, nil
}

// LoadOrCreateBadgerStore loads the database at path, or creates it if it does
// not exist.
func LoadOrCreateBadgerStore(cacheSize int, path string) (*BadgerStore, error) {
	store, err := LoadBadgerStore(cacheSize, path)
	if err != nil {
		store, err = NewBadgerStore(cacheSize, path)
		if err != nil {
			return nil, err
		}
	}
	return store, nil
}

func openBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	return badger.Open(opts)
}

//==============================================================================
//Keys

func eventKey(hash Hash) []byte {
	return []byte(fmt.Sprintf("%s_%s", eventPrefix, hash.Hex()))
}

func topologicalEventKey(index int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", topoPrefix, index))
}

//==============================================================================
//Implement the Store interface

// CacheSize implements the Store interface.
func (s *BadgerStore) CacheSize() int {
	return s.inmemStore.CacheSize()
}

// GetEvent implements the Store interface.
func (s *BadgerStore) GetEvent(hash Hash) (*Event, error) {
	event, err := s.inmemStore.GetEvent(hash)
	if err != nil {
		event, err = s.dbGetEvent(hash)
	}
	return event, mapError(err, "Event", hash.Hex())
}

// SetEvent implements the Store interface.
func (s *BadgerStore) SetEvent(event *Event) error {
	s.Lock()
	defer s.Unlock()

	written, err := s.dbSetEvent(event, s.topoIndex)
	if err != nil {
		return err
	}
	if written {
		s.topoIndex++
	}

	return s.inmemStore.SetEvent(event)
}

// TopologicalEvents implements the Store interface. Events are always read
// from the database, which holds the full history.
func (s *BadgerStore) TopologicalEvents(start, count int) ([]*Event, error) {
	return s.dbTopologicalEvents(start, count)
}

// EventCount implements the Store interface.
func (s *BadgerStore) EventCount() int {
	s.Lock()
	defer s.Unlock()
	return s.topoIndex
}

// LastEventWindow implements the Store interface.
func (s *BadgerStore) LastEventWindow() (EventWindow, error) {
	w, err := s.inmemStore.LastEventWindow()
	if err == nil {
		return w, nil
	}
	w, err = s.dbGetEventWindow()
	return w, mapError(err, "EventWindow", windowKey)
}

// SetEventWindow implements the Store interface.
func (s *BadgerStore) SetEventWindow(w EventWindow) error {
	if err := s.dbSetEventWindow(w); err != nil {
		return err
	}
	return s.inmemStore.SetEventWindow(w)
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	if err := s.inmemStore.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

// NeedBootstrap reports whether the store was loaded from an existing
// database.
func (s *BadgerStore) NeedBootstrap() bool {
	return s.needBootstrap
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
//DB Methods

func (s *BadgerStore) dbGetEvent(hash Hash) (*Event, error) {
	var eventBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(eventKey(hash))
		if err != nil {
			return err
		}
		eventBytes, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	event := new(Event)
	if err := event.Unmarshal(eventBytes); err != nil {
		return nil, err
	}

	return event, nil
}

// dbSetEvent writes the event and its topological index in one transaction.
// It returns false if the event was already stored.
func (s *BadgerStore) dbSetEvent(event *Event, topoIndex int) (bool, error) {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	key := eventKey(event.Hash())

	_, err := tx.Get(key)
	if err == nil {
		return false, nil
	}
	if !isDBKeyNotFound(err) {
		return false, err
	}

	val, err := event.Marshal()
	if err != nil {
		return false, err
	}

	//insert [event hash] => [event bytes]
	if err := tx.Set(key, val); err != nil {
		return false, err
	}

	//insert [topo_index] => [event key]
	if err := tx.Set(topologicalEventKey(topoIndex), key); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (s *BadgerStore) dbTopologicalEvents(start, count int) ([]*Event, error) {
	res := []*Event{}
	err := s.db.View(func(txn *badger.Txn) error {
		for t := start; count < 0 || t < start+count; t++ {
			item, err := txn.Get(topologicalEventKey(t))
			if isDBKeyNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}

			evKey, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			eventItem, err := txn.Get(evKey)
			if err != nil {
				return err
			}

			eventBytes, err := eventItem.ValueCopy(nil)
			if err != nil {
				return err
			}

			event := new(Event)
			if err := event.Unmarshal(eventBytes); err != nil {
				return err
			}
			res = append(res, event)
		}
		return nil
	})

	return res, err
}

func (s *BadgerStore) dbCountTopological() (int, error) {
	count := 0
	prefix := []byte(topoPrefix + "_")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (s *BadgerStore) dbGetEventWindow() (EventWindow, error) {
	var w EventWindow
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(windowKey))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return w, err
	}

	jh := new(codec.JsonHandle)
	if err := codec.NewDecoderBytes(raw, jh).Decode(&w); err != nil {
		return w, err
	}
	return w, nil
}

func (s *BadgerStore) dbSetEventWindow(w EventWindow) error {
	buf := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	if err := codec.NewEncoder(buf, jh).Encode(w); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(windowKey), buf.Bytes())
	})
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

func mapError(err error, name, key string) error {
	if err != nil && isDBKeyNotFound(err) {
		return cm.NewStoreErr(name, cm.KeyNotFound, key)
	}
	return err
}

