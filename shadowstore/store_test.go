package shadowstore_test

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/relabs-tech/shadowsync/core/csql"
	"github.com/relabs-tech/shadowsync/shadow"
	"github.com/relabs-tech/shadowsync/shadowstore"
)

// openTestDB connects to the database from the POSTGRES environment
// variable, e.g.
// POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
func openTestDB(t *testing.T) *csql.DB {
	t.Helper()
	dsn := os.Getenv("POSTGRES")
	if dsn == "" {
		t.Skip("set POSTGRES to run database tests")
	}
	db := csql.OpenWithSchema(dsn, "shadowstore_test")
	db.ClearSchema()
	t.Cleanup(func() { db.Close() })
	return db
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []shadowstore.Operation
}

func (n *recordingNotifier) Notify(thing string, operation shadowstore.Operation, payload []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, operation)
}

func TestStoreLifecycle(t *testing.T) {
	db := openTestDB(t)
	store := shadowstore.New(db)
	notifier := &recordingNotifier{}
	store.AddNotifier(notifier)

	if _, err := store.Load("panel"); err != shadowstore.ErrNotFound {
		t.Fatalf("expected ErrNotFound for a fresh thing, got %v", err)
	}

	// first update creates the document with version 1
	record, delta, err := store.Apply("panel", shadow.Document{
		State: shadow.StateDocument{Desired: shadow.State{"Red": 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if record.Version != 1 {
		t.Fatalf("expected version 1, got %d", record.Version)
	}
	if !delta.Equal(shadow.State{"Red": 1}) {
		t.Fatalf("expected delta Red=1, got %v", delta)
	}

	// the report settles the delta
	record, delta, err = store.Apply("panel", shadow.Document{
		State: shadow.StateDocument{Reported: shadow.State{"Red": 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if record.Version != 2 {
		t.Fatalf("expected version 2, got %d", record.Version)
	}
	if len(delta) != 0 {
		t.Fatalf("expected empty delta after matching report, got %v", delta)
	}

	// updates merge key by key
	record, _, err = store.Apply("panel", shadow.Document{
		State: shadow.StateDocument{Desired: shadow.State{"Green": 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !record.Desired.Equal(shadow.State{"Red": 1, "Green": 1}) {
		t.Fatalf("expected merged desired state, got %v", record.Desired)
	}

	loaded, err := store.Load("panel")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Version != record.Version || !loaded.Desired.Equal(record.Desired) {
		t.Fatalf("loaded record differs: %+v vs %+v", loaded, record)
	}

	if err := store.Delete("panel"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("panel"); err != shadowstore.ErrNotFound {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := store.Load("panel"); err != shadowstore.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	want := []shadowstore.Operation{
		shadowstore.OperationUpdate,
		shadowstore.OperationUpdate,
		shadowstore.OperationUpdate,
		shadowstore.OperationDelete,
	}
	if len(notifier.calls) != len(want) {
		t.Fatalf("expected %d notifications, got %d", len(want), len(notifier.calls))
	}
	for i, op := range want {
		if notifier.calls[i] != op {
			t.Fatalf("notification %d expected to be %s, got %s", i, op, notifier.calls[i])
		}
	}
}

func TestConcurrentApply(t *testing.T) {
	db := openTestDB(t)
	store := shadowstore.New(db)

	// desired updates from the REST API race reported updates from the
	// broker; every merge must survive and every version be handed out
	// exactly once
	const writers = 20
	var wg sync.WaitGroup
	versions := make(chan uint64, 2*writers)
	for i := 0; i < writers; i++ {
		channel := fmt.Sprintf("Chan%d", i)
		wg.Add(2)
		go func(c string) {
			defer wg.Done()
			record, _, err := store.Apply("panel", shadow.Document{
				State: shadow.StateDocument{Desired: shadow.State{c: 1}},
			})
			if err != nil {
				t.Error(err)
				return
			}
			versions <- record.Version
		}(channel)
		go func(c string) {
			defer wg.Done()
			record, _, err := store.Apply("panel", shadow.Document{
				State: shadow.StateDocument{Reported: shadow.State{c: 1}},
			})
			if err != nil {
				t.Error(err)
				return
			}
			versions <- record.Version
		}(channel)
	}
	wg.Wait()
	close(versions)

	seen := make(map[uint64]bool)
	for v := range versions {
		if seen[v] {
			t.Fatalf("version %d handed out twice", v)
		}
		seen[v] = true
	}

	record, err := store.Load("panel")
	if err != nil {
		t.Fatal(err)
	}
	if record.Version != 2*writers {
		t.Fatalf("expected version %d after %d updates, got %d", 2*writers, 2*writers, record.Version)
	}
	if len(record.Desired) != writers || len(record.Reported) != writers {
		t.Fatalf("lost a merge: %d desired, %d reported channels", len(record.Desired), len(record.Reported))
	}
	for i := 0; i < writers; i++ {
		channel := fmt.Sprintf("Chan%d", i)
		if record.Desired[channel] != 1 || record.Reported[channel] != 1 {
			t.Fatalf("channel %s lost in the merge", channel)
		}
	}
}
