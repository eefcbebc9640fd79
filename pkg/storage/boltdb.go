package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/charmed-norris/pkg/errors"
	"github.com/cuemby/charmed-norris/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketUnit      = []byte("unit")
	bucketRelations = []byte("relations")
	bucketLayers    = []byte("layers")
	bucketProcesses = []byte("processes")

	keyUnitState = []byte("state")
)

// DBFile is the database file name inside the data directory
const DBFile = "norris.db"

// OpenTimeout bounds the wait for the file lock held by another process,
// usually a running agent
const OpenTimeout = 5 * time.Second

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, errors.NewIOError("failed to create data directory", err).WithContext("dir", dataDir)
	}

	dbPath := filepath.Join(dataDir, DBFile)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: OpenTimeout})
	if err != nil {
		return nil, errors.NewIOError("failed to open database", err).WithContext("path", dbPath)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketUnit,
			bucketRelations,
			bucketLayers,
			bucketProcesses,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// put marshals v as JSON under key in bucket
func (s *BoltStore) put(bucket, key []byte, v interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put(key, data)
	})
}

// get unmarshals the JSON value under key, returning a not-found error if absent
func (s *BoltStore) get(bucket, key []byte, v interface{}, what string) error {
	return s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return errors.NewNotFoundError(fmt.Sprintf("%s not found: %s", what, key), nil)
		}
		return json.Unmarshal(data, v)
	})
}

// Unit state operations

// GetUnitState returns the stored unit state, or a zero state on first run
func (s *BoltStore) GetUnitState() (*types.UnitState, error) {
	var state types.UnitState
	err := s.get(bucketUnit, keyUnitState, &state, "unit state")
	if errors.IsNotFoundError(err) {
		return &types.UnitState{Status: types.UnitStatus{Kind: types.StatusUnknown}}, nil
	}
	if err != nil {
		return nil, err
	}
	if state.LastApplied != nil {
		normalized := state.LastApplied.Normalize()
		state.LastApplied = &normalized
	}
	return &state, nil
}

func (s *BoltStore) SaveUnitState(state *types.UnitState) error {
	return s.put(bucketUnit, keyUnitState, state)
}

// Relation operations
func (s *BoltStore) SetRelationData(relation string, data map[string]string) error {
	return s.put(bucketRelations, []byte(relation), data)
}

func (s *BoltStore) GetRelationData(relation string) (map[string]string, error) {
	data := make(map[string]string)
	if err := s.get(bucketRelations, []byte(relation), &data, "relation"); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BoltStore) ListRelations() ([]string, error) {
	var relations []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRelations).ForEach(func(k, v []byte) error {
			relations = append(relations, string(k))
			return nil
		})
	})
	return relations, err
}

func (s *BoltStore) DeleteRelation(relation string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRelations).Delete([]byte(relation))
	})
}

// Layer operations
func (s *BoltStore) SaveLayer(record *types.LayerRecord) error {
	return s.put(bucketLayers, []byte(record.Label), record)
}

func (s *BoltStore) GetLayer(label string) (*types.LayerRecord, error) {
	var record types.LayerRecord
	if err := s.get(bucketLayers, []byte(label), &record, "layer"); err != nil {
		return nil, err
	}
	record.Layer = record.Layer.Normalize()
	return &record, nil
}

// ListLayers returns layers in the order they were first added
func (s *BoltStore) ListLayers() ([]*types.LayerRecord, error) {
	var layers []*types.LayerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLayers).ForEach(func(k, v []byte) error {
			var record types.LayerRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			record.Layer = record.Layer.Normalize()
			layers = append(layers, &record)
			return nil
		})
	})
	sort.Slice(layers, func(i, j int) bool {
		return layers[i].Order < layers[j].Order
	})
	return layers, err
}

// Process operations
func (s *BoltStore) SaveProcess(record *types.ProcessRecord) error {
	return s.put(bucketProcesses, []byte(record.Name), record)
}

func (s *BoltStore) GetProcess(name string) (*types.ProcessRecord, error) {
	var record types.ProcessRecord
	if err := s.get(bucketProcesses, []byte(name), &record, "process"); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *BoltStore) ListProcesses() ([]*types.ProcessRecord, error) {
	var processes []*types.ProcessRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProcesses).ForEach(func(k, v []byte) error {
			var record types.ProcessRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			processes = append(processes, &record)
			return nil
		})
	})
	return processes, err
}
