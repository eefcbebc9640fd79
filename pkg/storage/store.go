package storage

import (
	"github.com/cuemby/charmed-norris/pkg/types"
)

// Store defines the interface for operator state storage
// This is implemented by BoltDB-backed storage
type Store interface {
	// Unit state
	GetUnitState() (*types.UnitState, error)
	SaveUnitState(state *types.UnitState) error

	// Relation data bags
	SetRelationData(relation string, data map[string]string) error
	GetRelationData(relation string) (map[string]string, error)
	ListRelations() ([]string, error)
	DeleteRelation(relation string) error

	// Local supervisor layers
	SaveLayer(record *types.LayerRecord) error
	GetLayer(label string) (*types.LayerRecord, error)
	ListLayers() ([]*types.LayerRecord, error)

	// Local supervisor processes
	SaveProcess(record *types.ProcessRecord) error
	GetProcess(name string) (*types.ProcessRecord, error)
	ListProcesses() ([]*types.ProcessRecord, error)

	// Utility
	Close() error
}
