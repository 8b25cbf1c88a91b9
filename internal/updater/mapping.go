package updater

import (
	"fmt"

	"github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
)

// Target is one indexed type an entity is written to.
type Target struct {
	IndexedType string
	IDField     string
	Encoder     Encoder
}

// Mapping resolves entity types to their index targets. It is built once
// and read-only afterwards.
type Mapping struct {
	targets map[string][]Target
}

// NewMapping resolves the encoders of every index reference. Entities may
// share an indexed type as long as each writes it under its own id field;
// two entities claiming the same type and id field would overwrite each
// other's documents and are rejected. All problems are reported together.
func NewMapping(infos []eventmodel.EventModelInfo) (*Mapping, error) {
	m := &Mapping{targets: make(map[string][]Target, len(infos))}
	var errs []error
	owners := make(map[[2]string]string)
	for _, info := range infos {
		for _, ref := range info.Index {
			slot := [2]string{ref.IndexedType, ref.IDField}
			if owner, taken := owners[slot]; taken && owner != info.EntityType {
				errs = append(errs, errors.MappingError(fmt.Sprintf(
					"entities %s and %s both write index %s under id field %s; give each its own id_field",
					owner, info.EntityType, ref.IndexedType, ref.IDField)))
				continue
			}
			owners[slot] = info.EntityType

			enc, err := LookupEncoder(ref.Encoder, info.IDColumns)
			if err != nil {
				if se, ok := err.(*errors.SyncError); ok {
					se.WithDetail("entity", info.EntityType).WithDetail("indexed_type", ref.IndexedType)
				}
				errs = append(errs, fmt.Errorf("entity %s, index %s: %w", info.EntityType, ref.IndexedType, err))
				continue
			}
			m.targets[info.EntityType] = append(m.targets[info.EntityType], Target{
				IndexedType: ref.IndexedType,
				IDField:     ref.IDField,
				Encoder:     enc,
			})
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// Targets returns the index targets of entityType.
func (m *Mapping) Targets(entityType string) ([]Target, bool) {
	t, ok := m.targets[entityType]
	return t, ok && len(t) > 0
}

// ParseID decodes an id as written in entityType's first index target.
func (m *Mapping) ParseID(entityType, s string) (eventmodel.ID, error) {
	targets, ok := m.Targets(entityType)
	if !ok {
		return nil, errors.MappingError("no index mapping for entity " + entityType)
	}
	id, err := targets[0].Encoder.Decode(s)
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid %s id %q", entityType, s), err)
	}
	return id, nil
}
