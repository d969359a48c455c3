package storage

import (
	"bytes"
	"encoding/json"

	"gorm.io/gorm"
)

// Supported dialect names, as reported by gorm.Dialector.Name.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// IsPostgres reports whether the storage talks to PostgreSQL.
func (s *GormStorage) IsPostgres() bool {
	return s.db.Dialector.Name() == DialectPostgres
}

// IsSQLite reports whether the storage talks to SQLite.
func (s *GormStorage) IsSQLite() bool {
	return s.db.Dialector.Name() == DialectSQLite
}

// lockTable takes the table-level lock used by the claiming protocol.
// SQLite has no table locks; Open configures immediate transactions so the
// database write lock is held from BEGIN instead.
func (s *GormStorage) lockTable(tx *gorm.DB) error {
	if !s.IsPostgres() {
		return nil
	}
	return tx.Exec(`LOCK TABLE "jobs" IN ACCESS EXCLUSIVE MODE`).Error
}

// supportsRowLocks reports whether SELECT ... FOR UPDATE is available.
func (s *GormStorage) supportsRowLocks() bool {
	return s.IsPostgres()
}

func decodeDocument(data []byte) (any, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// jsonContains reports whether container structurally contains contained,
// following the rules of the PostgreSQL jsonb @> operator: objects match
// when every key of contained is present with a contained value, arrays
// match when every element of contained is contained in some element of
// container, scalars match on equality.
func jsonContains(container, contained any) bool {
	switch want := contained.(type) {
	case map[string]any:
		have, ok := container.(map[string]any)
		if !ok {
			return false
		}
		for key, value := range want {
			stored, ok := have[key]
			if !ok || !jsonContains(stored, value) {
				return false
			}
		}
		return true
	case []any:
		have, ok := container.([]any)
		if !ok {
			return false
		}
		for _, value := range want {
			found := false
			for _, stored := range have {
				if jsonContains(stored, value) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return container == contained
	}
}
