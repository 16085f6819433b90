// Package registry keeps track of the users a daemon has enrolled.
//
// The engine stores the biometric templates itself. The registry only remembers
// the identifiers the engine handed back, so operators can list and look up
// enrollments and the server can tidy up after a delete.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Store defines the interface for storing enrollment records.
// Implementations should be thread-safe.
type Store interface {
	// Put saves a record, replacing any record with the same PUID.
	Put(ctx context.Context, rec Record) error

	// Get retrieves a record by PUID.
	Get(ctx context.Context, puid string) (*Record, error)

	// Delete removes a record by PUID.
	Delete(ctx context.Context, puid string) error

	// List returns all records, oldest enrollment first.
	List(ctx context.Context) ([]Record, error)
}

// Record is one enrolled user.
type Record struct {
	// PUID is the engine's persistent user identifier.
	PUID string `json:"puid"`

	// GUID is the engine's global identifier, if it returned one.
	GUID string `json:"guid,omitempty"`

	// EnrolledAt is when the enrollment was recorded.
	EnrolledAt time.Time `json:"enrolled_at"`

	// Source identifies the request that enrolled the user.
	Source string `json:"source,omitempty"`
}

// Common errors for Store implementations.
var (
	ErrNotFound   = errors.New("record not found")
	ErrNoPUID     = errors.New("record has no puid")
	ErrNoIdentity = errors.New("result carries no puid")
)

// FromResult extracts the user identifiers from an enroll result. The puid
// and guid may sit at the top level or inside one nested object.
func FromResult(result string) (Record, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(result), &top); err != nil {
		return Record{}, err
	}

	if rec, ok := identity(top); ok {
		return rec, nil
	}
	for _, raw := range top {
		var nested map[string]json.RawMessage
		if json.Unmarshal(raw, &nested) != nil {
			continue
		}
		if rec, ok := identity(nested); ok {
			return rec, nil
		}
	}
	return Record{}, ErrNoIdentity
}

func identity(obj map[string]json.RawMessage) (Record, bool) {
	var rec Record
	if raw, ok := obj["puid"]; !ok || json.Unmarshal(raw, &rec.PUID) != nil || rec.PUID == "" {
		return Record{}, false
	}
	if raw, ok := obj["guid"]; ok {
		_ = json.Unmarshal(raw, &rec.GUID)
	}
	return rec, true
}
