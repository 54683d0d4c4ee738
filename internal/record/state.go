// Package record holds record instances and the lifecycle state the record
// manager tracks for each of them.
package record

// Lifecycle is the persistence state of a tracked record.
type Lifecycle uint8

const (
	// StateReference is a record known only by its key; its fields have
	// not been loaded.
	StateReference Lifecycle = iota
	// StateNew is a record that has never been written to storage.
	StateNew
	// StateStored is a record whose fields are populated and which exists
	// in storage.
	StateStored
	// StateDeleted is a record that no longer exists in storage.
	StateDeleted
)

func (l Lifecycle) String() string {
	switch l {
	case StateReference:
		return "reference"
	case StateNew:
		return "new"
	case StateStored:
		return "stored"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Task is the pending work for a tracked record.
type Task uint8

const (
	TaskNone Task = iota
	TaskFetch
	TaskStore
	TaskDelete
)

func (t Task) String() string {
	switch t {
	case TaskNone:
		return "none"
	case TaskFetch:
		return "fetch"
	case TaskStore:
		return "store"
	case TaskDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// State is the bookkeeping attached to every tracked record.
//
// Key is the binary key of a reference record, or the key hash of a record
// with a natural key. It is nil only for reference records that have not
// been assigned a key yet.
type State struct {
	State Lifecycle
	Task  Task
	Key   []byte
}

// CanBePersisted reports whether the record may be queued for writing.
func (s *State) CanBePersisted() bool {
	if s.Task == TaskFetch || s.Task == TaskDelete {
		return false
	}
	return s.State != StateReference && s.State != StateDeleted
}

// CanBeRemoved reports whether the record may be queued for deletion.
func (s *State) CanBeRemoved() bool {
	if s.Task == TaskStore {
		return false
	}
	return s.State != StateNew && s.State != StateDeleted
}
