package orm

import "github.com/roach88/blazeorm/internal/record"

// SyncData is the batch of pending writes computed at flush time, grouped
// by record type. It is not modified after it is built.
type SyncData struct {
	created map[string][]*record.Entity
	updated map[string][]*record.Entity
	deleted map[string][]*record.Entity
	types   []string
}

func newSyncData() *SyncData {
	return &SyncData{
		created: make(map[string][]*record.Entity),
		updated: make(map[string][]*record.Entity),
		deleted: make(map[string][]*record.Entity),
	}
}

func (d *SyncData) add(bucket map[string][]*record.Entity, e *record.Entity) {
	typ := e.Type()
	if !d.affects(typ) {
		d.types = append(d.types, typ)
	}
	bucket[typ] = append(bucket[typ], e)
}

func (d *SyncData) affects(typ string) bool {
	for _, t := range d.types {
		if t == typ {
			return true
		}
	}
	return false
}

// Types returns the affected record types in the order they were first
// seen.
func (d *SyncData) Types() []string {
	return append([]string(nil), d.types...)
}

// Created returns the records of typ to be inserted.
func (d *SyncData) Created(typ string) []*record.Entity {
	return d.created[typ]
}

// Updated returns the records of typ to be updated.
func (d *SyncData) Updated(typ string) []*record.Entity {
	return d.updated[typ]
}

// Deleted returns the records of typ to be deleted.
func (d *SyncData) Deleted(typ string) []*record.Entity {
	return d.deleted[typ]
}

// Persisted returns the created records of typ followed by the updated
// ones.
func (d *SyncData) Persisted(typ string) []*record.Entity {
	out := make([]*record.Entity, 0, len(d.created[typ])+len(d.updated[typ]))
	out = append(out, d.created[typ]...)
	return append(out, d.updated[typ]...)
}

// Empty reports whether the batch holds no records.
func (d *SyncData) Empty() bool {
	return len(d.types) == 0
}

// Counts returns the number of created, updated and deleted records.
func (d *SyncData) Counts() (created, updated, deleted int) {
	for _, list := range d.created {
		created += len(list)
	}
	for _, list := range d.updated {
		updated += len(list)
	}
	for _, list := range d.deleted {
		deleted += len(list)
	}
	return created, updated, deleted
}
