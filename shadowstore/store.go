package shadowstore

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/relabs-tech/shadowsync/core/csql"
	"github.com/relabs-tech/shadowsync/core/logger"
	"github.com/relabs-tech/shadowsync/shadow"
)

// ErrNotFound is returned when a thing has no shadow document.
var ErrNotFound = errors.New("no shadow document")

// Record is one stored shadow document.
type Record struct {
	Thing     string       `json:"thing"`
	Desired   shadow.State `json:"desired"`
	Reported  shadow.State `json:"reported"`
	Version   uint64       `json:"version"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Document returns the wire representation of the record.
func (r Record) Document() shadow.Document {
	return shadow.Document{
		State: shadow.StateDocument{
			Desired:  r.Desired,
			Reported: r.Reported,
		},
		Version: r.Version,
	}
}

// Store persists shadow documents in postgres.
type Store struct {
	db        *csql.DB
	notifiers []Notifier
}

// CreateShadowTableIfNotExists creates the SQL table for the shadow
// documents. The table is a system table and named "_shadow_".
func CreateShadowTableIfNotExists(db *csql.DB) {
	// poor man's database migrations
	_, err := db.Exec(`CREATE table IF NOT EXISTS ` + db.Schema + `."_shadow_"
(thing varchar NOT NULL,
desired json NOT NULL,
reported json NOT NULL,
version bigint NOT NULL,
updated_at timestamp NOT NULL,
PRIMARY KEY(thing)
);`)

	if err != nil {
		panic(err)
	}
}

// New returns a store on the given database. It creates the shadow table
// if it does not exist.
func New(db *csql.DB) *Store {
	if db == nil {
		panic("DB is missing")
	}
	CreateShadowTableIfNotExists(db)
	return &Store{db: db}
}

// AddNotifier attaches a notifier for accepted changes.
func (s *Store) AddNotifier(n Notifier) {
	s.notifiers = append(s.notifiers, n)
}

// Load returns the shadow document of a thing, or ErrNotFound.
func (s *Store) Load(thing string) (Record, error) {
	record := Record{Thing: thing}
	var desired, reported []byte
	err := s.db.QueryRow(
		`SELECT desired,reported,version,updated_at FROM `+s.db.Schema+`."_shadow_" WHERE thing=$1;`,
		thing).Scan(&desired, &reported, &record.Version, &record.UpdatedAt)
	if err == csql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(desired, &record.Desired); err != nil {
		return Record{}, fmt.Errorf("corrupt desired state: %w", err)
	}
	if err := json.Unmarshal(reported, &record.Reported); err != nil {
		return Record{}, fmt.Errorf("corrupt reported state: %w", err)
	}
	return record, nil
}

// Apply merges an update request into the stored document, bumps the
// version and returns the new record together with the resulting delta.
// An empty delta means desired and reported agree.
//
// Merge and version bump happen in a single UPSERT, so concurrent updates
// to the same thing serialize on the row and no merge is ever lost.
func (s *Store) Apply(thing string, request shadow.Document) (Record, shadow.State, error) {
	desired, err := json.Marshal(orEmpty(request.State.Desired))
	if err != nil {
		return Record{}, nil, err
	}
	reported, err := json.Marshal(orEmpty(request.State.Reported))
	if err != nil {
		return Record{}, nil, err
	}

	record := Record{Thing: thing}
	var mergedDesired, mergedReported []byte
	err = s.db.QueryRow(
		`INSERT INTO `+s.db.Schema+`."_shadow_" AS shadow (thing,desired,reported,version,updated_at)
VALUES($1,$2,$3,1,$4)
ON CONFLICT (thing) DO UPDATE SET
desired=(shadow.desired::jsonb || $2::jsonb)::json,
reported=(shadow.reported::jsonb || $3::jsonb)::json,
version=shadow.version+1,
updated_at=$4
RETURNING desired,reported,version,updated_at;`,
		thing, string(desired), string(reported), time.Now().UTC(),
	).Scan(&mergedDesired, &mergedReported, &record.Version, &record.UpdatedAt)
	if err != nil {
		return Record{}, nil, err
	}
	if err := json.Unmarshal(mergedDesired, &record.Desired); err != nil {
		return Record{}, nil, fmt.Errorf("corrupt desired state: %w", err)
	}
	if err := json.Unmarshal(mergedReported, &record.Reported); err != nil {
		return Record{}, nil, fmt.Errorf("corrupt reported state: %w", err)
	}

	s.notify(thing, OperationUpdate, record)
	return record, ComputeDelta(record.Desired, record.Reported), nil
}

// orEmpty keeps absent sides out of the merge: a nil state marshals to
// null, which jsonb concatenation would adopt wholesale.
func orEmpty(state shadow.State) shadow.State {
	if state == nil {
		return shadow.State{}
	}
	return state
}

// Delete removes the shadow document of a thing. Deleting a missing
// document returns ErrNotFound.
func (s *Store) Delete(thing string) error {
	res, err := s.db.Exec(`DELETE FROM `+s.db.Schema+`."_shadow_" WHERE thing=$1;`, thing)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	s.notify(thing, OperationDelete, Record{Thing: thing})
	return nil
}

func (s *Store) notify(thing string, operation Operation, record Record) {
	if len(s.notifiers) == 0 {
		return
	}
	payload, err := json.Marshal(record)
	if err != nil {
		logger.Default().Errorln("marshal shadow record:", err)
		return
	}
	for _, n := range s.notifiers {
		n.Notify(thing, operation, payload)
	}
}
