package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/devghori1264/quads/internal/models"
	"github.com/devghori1264/quads/internal/schema"
	"github.com/devghori1264/quads/internal/storage"
)

type recorder struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (r *recorder) PublishEvent(_ context.Context, ev models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Resource+"."+ev.Event)
	}
	return out
}

func newTestServer(t *testing.T) (*Server, *recorder) {
	t.Helper()
	store, err := storage.NewBadgerStore("")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return newServerOn(t, store)
}

func newServerOn(t *testing.T, store storage.Store) (*Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	s, err := New(store, WithEvents(rec))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s, rec
}

func mustResource(t *testing.T, s *Server, name string) *ResourceHandler {
	t.Helper()
	h, ok := s.Resource(name)
	if !ok {
		t.Fatalf("resource %s not bound", name)
	}
	return h
}

func expect(t *testing.T, res Result, status int, msgs ...string) {
	t.Helper()
	if res.Status != status {
		t.Fatalf("status = %d, want %d (result %q)", res.Status, status, res.Messages)
	}
	if len(msgs) > 0 && !reflect.DeepEqual(res.Messages, msgs) {
		t.Fatalf("result = %q, want %q", res.Messages, msgs)
	}
}

func seedCloud(t *testing.T, s *Server, name string) {
	t.Helper()
	expect(t, mustResource(t, s, "cloud").Save(context.Background(), models.Fields{"cloud": name}), http.StatusCreated)
}

func TestRegistry(t *testing.T) {
	s, _ := newTestServer(t)
	want := []string{"ccuser", "cloud", "host", "owner", "qinq", "ticket", "wipe"}
	if got := s.Resources(); !reflect.DeepEqual(got, want) {
		t.Fatalf("resources = %v", got)
	}
	if got := s.Properties(); !reflect.DeepEqual(got, []string{"interfaces", "schedule"}) {
		t.Fatalf("properties = %v", got)
	}
	if h := mustResource(t, s, "owner"); h.Collection != models.Clouds || h.Field != "owner" {
		t.Fatalf("owner bound to %+v", h)
	}
}

func TestHostLifecycle(t *testing.T) {
	s, rec := newTestServer(t)
	ctx := context.Background()
	seedCloud(t, s, "cloud01")
	host := mustResource(t, s, "host")

	expect(t, host.Save(ctx, models.Fields{"host": "h1", "cloud": "cloud01"}), http.StatusCreated, "Created host h1")
	expect(t, host.Save(ctx, models.Fields{"host": "h1", "cloud": "cloud01"}), http.StatusConflict, "host h1 already exists")
	expect(t, host.Save(ctx, models.Fields{"host": "h1", "cloud": "cloud01", "model": "r640", "force": "True"}), http.StatusOK, "Updated host h1")

	res := host.List(ctx, models.Fields{"host": "h1"})
	expect(t, res, http.StatusOK)
	if len(res.Docs) != 1 || res.Docs[0].Text("model") != "r640" {
		t.Fatalf("list = %v", res.Docs)
	}

	expect(t, host.Delete(ctx, "h1"), http.StatusOK, "deleted host h1")
	expect(t, host.Delete(ctx, "h1"), http.StatusNotFound, "host h1 Not Found")

	res = host.List(ctx, nil)
	if len(res.Docs) != 0 {
		t.Fatalf("deleted host still listed: %v", res.Docs)
	}

	want := []string{"cloud.created", "host.created", "host.updated", "host.deleted"}
	if got := rec.kinds(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestSaveValidationFailure(t *testing.T) {
	s, rec := newTestServer(t)
	res := mustResource(t, s, "host").Save(context.Background(), models.Fields{"cloud": "cloud01"})
	expect(t, res, http.StatusBadRequest, "Data validation failed: host is required, cloud cloud01 not found")
	if len(rec.kinds()) != 0 {
		t.Fatalf("validation failure emitted events: %v", rec.kinds())
	}
}

func TestForceUpdateKeepsExistingValues(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	cloud := mustResource(t, s, "cloud")

	expect(t, cloud.Save(ctx, models.Fields{"cloud": "cloud02", "owner": "alice", "wipe": "false"}), http.StatusCreated)
	expect(t, cloud.Save(ctx, models.Fields{"cloud": "cloud02", "ticket": "4242", "force": "true"}), http.StatusOK, "Updated cloud cloud02")

	docs := cloud.List(ctx, models.Fields{"cloud": "cloud02"}).Docs
	if len(docs) != 1 {
		t.Fatalf("list = %v", docs)
	}
	d := docs[0]
	if d.Text("owner") != "alice" || d.Text("wipe") != "false" || d.Text("ticket") != "4242" {
		t.Fatalf("force update clobbered fields: %v", d)
	}
}

func TestCloudOnly(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	seedCloud(t, s, "cloud03")
	cloud := mustResource(t, s, "cloud")

	res := cloud.List(ctx, models.Fields{CloudOnly: "cloud03"})
	expect(t, res, http.StatusOK)
	if len(res.Docs) != 1 || res.Docs[0].Text("cloud") != "cloud03" {
		t.Fatalf("cloudonly = %v", res.Docs)
	}

	res = cloud.List(ctx, models.Fields{CloudOnly: "cloud04"})
	expect(t, res, http.StatusNotFound)
	body, ok := res.Payload().(map[string]any)
	if !ok || body["result"] != "Cloud cloud04 Not Found" {
		t.Fatalf("payload = %#v", res.Payload())
	}
}

func TestOwnerResourceSharesCollection(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	owner := mustResource(t, s, "owner")

	expect(t, owner.Save(ctx, models.Fields{"cloud": "cloud05", "owner": "carol"}), http.StatusCreated, "Created owner carol")
	expect(t, owner.Save(ctx, models.Fields{"cloud": "cloud06", "owner": "carol"}), http.StatusConflict, "owner carol already exists")
	expect(t, owner.Save(ctx, models.Fields{"cloud": "cloud05", "owner": "dave"}), http.StatusConflict, "cloud cloud05 already exists")
	expect(t, owner.Delete(ctx, "carol"), http.StatusOK, "deleted owner carol")
	if docs := mustResource(t, s, "cloud").List(ctx, nil).Docs; len(docs) != 0 {
		t.Fatalf("clouds left: %v", docs)
	}
}

func TestScheduleProperty(t *testing.T) {
	s, rec := newTestServer(t)
	ctx := context.Background()
	seedCloud(t, s, "cloud01")
	seedCloud(t, s, "cloud02")
	expect(t, mustResource(t, s, "host").Save(ctx, models.Fields{"host": "h1", "cloud": "cloud01"}), http.StatusCreated)

	sched, ok := s.Property("schedule")
	if !ok {
		t.Fatal("schedule not bound")
	}
	fields := models.Fields{"host": "h1", "cloud": "cloud02", "start": "2026-11-01 22:00", "end": "2026-11-15 22:00"}
	expect(t, sched.Save(ctx, fields), http.StatusCreated, "Added schedule 0 to host h1")

	docs := sched.List(ctx).Docs
	if len(docs) != 1 || len(docs[0].Property("schedule")) != 1 {
		t.Fatalf("list = %v", docs)
	}

	expect(t, sched.Save(ctx, fields), http.StatusBadRequest, "Data validation failed: schedule overlaps with index 0")

	expect(t, sched.Remove(ctx, "0", "h1"), http.StatusOK, "deleted schedule from h1")
	expect(t, sched.Remove(ctx, "0", "h7"), http.StatusNotFound, "schedule Not Found for host h7")

	docs = sched.List(ctx).Docs
	if len(docs[0].Property("schedule")) != 0 {
		t.Fatalf("schedule entry not removed: %v", docs[0])
	}
	got := rec.kinds()
	if got[len(got)-2] != "host.property_added" || got[len(got)-1] != "host.property_removed" {
		t.Fatalf("events = %v", got)
	}
}

func TestInterfacesProperty(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	seedCloud(t, s, "cloud01")
	expect(t, mustResource(t, s, "host").Save(ctx, models.Fields{"host": "h1", "cloud": "cloud01"}), http.StatusCreated)

	ifaces, _ := s.Property("interfaces")
	expect(t, ifaces.Save(ctx, models.Fields{"host": "h1", "name": "em1", "switch": "sw01", "port": "xe-0/0/1"}),
		http.StatusCreated, "Added interfaces em1 to host h1")
	expect(t, ifaces.Save(ctx, models.Fields{"host": "h2", "name": "em1"}),
		http.StatusBadRequest, "Data validation failed: host h2 not found")

	doc := ifaces.List(ctx).Docs[0]
	em1, ok := doc.Property("interfaces")["em1"].(map[string]any)
	if !ok || em1["switch"] != "sw01" {
		t.Fatalf("interfaces = %v", doc.Property("interfaces"))
	}
}

// forEachBackend runs fn against a server on each store implementation.
func forEachBackend(t *testing.T, fn func(t *testing.T, s *Server)) {
	open := map[string]func(t *testing.T) (storage.Store, error){
		"badger": func(*testing.T) (storage.Store, error) { return storage.NewBadgerStore("") },
		"sqlite": func(t *testing.T) (storage.Store, error) {
			return storage.NewSQLiteStore(filepath.Join(t.TempDir(), "quads.db"))
		},
	}
	for name, o := range open {
		t.Run(name, func(t *testing.T) {
			store, err := o(t)
			if err != nil {
				t.Fatalf("open %s: %v", name, err)
			}
			t.Cleanup(func() { store.Close() })
			s, _ := newServerOn(t, store)
			fn(t, s)
		})
	}
}

func seedHost(t *testing.T, s *Server) *PropertyHandler {
	t.Helper()
	seedCloud(t, s, "cloud01")
	seedCloud(t, s, "cloud02")
	expect(t, mustResource(t, s, "host").Save(context.Background(), models.Fields{"host": "h1", "cloud": "cloud01"}), http.StatusCreated)
	sched, _ := s.Property("schedule")
	return sched
}

func TestConcurrentScheduleAddsGetDistinctIndexes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Server) {
		ctx := context.Background()
		sched := seedHost(t, s)

		const n = 20
		results := make([]Result, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				start := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 2*i)
				results[i] = sched.Save(ctx, models.Fields{
					"host":  "h1",
					"cloud": "cloud02",
					"start": start.Format(schema.ScheduleLayout),
					"end":   start.AddDate(0, 0, 1).Format(schema.ScheduleLayout),
				})
			}(i)
		}
		wg.Wait()

		seen := map[string]bool{}
		for _, res := range results {
			expect(t, res, http.StatusCreated)
			if seen[res.Messages[0]] {
				t.Fatalf("duplicate result %q", res.Messages[0])
			}
			seen[res.Messages[0]] = true
		}
		docs := sched.List(ctx).Docs
		if got := len(docs[0].Property("schedule")); got != n {
			t.Fatalf("stored %d schedule entries, want %d", got, n)
		}
	})
}

func TestConcurrentOverlappingScheduleAddsSingleWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Server) {
		ctx := context.Background()
		sched := seedHost(t, s)

		const n = 10
		results := make([]Result, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = sched.Save(ctx, models.Fields{
					"host": "h1", "cloud": "cloud02", "index": strconv.Itoa(i),
					"start": "2027-03-01 00:00", "end": "2027-03-08 00:00",
				})
			}(i)
		}
		wg.Wait()

		created := 0
		for _, res := range results {
			switch res.Status {
			case http.StatusCreated:
				created++
			case http.StatusBadRequest:
			default:
				t.Fatalf("unexpected result %d %q", res.Status, res.Messages)
			}
		}
		if created != 1 {
			t.Fatalf("expected one stored window, got %d", created)
		}
		if got := len(sched.List(ctx).Docs[0].Property("schedule")); got != 1 {
			t.Fatalf("stored %d overlapping entries", got)
		}
	})
}

func TestConcurrentForceUpdatesToDistinctClouds(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Server) {
		ctx := context.Background()
		const n = 20
		for i := 0; i < n; i++ {
			seedCloud(t, s, fmt.Sprintf("cloud%02d", i))
		}
		cloud := mustResource(t, s, "cloud")

		results := make([]Result, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = cloud.Save(ctx, models.Fields{"cloud": fmt.Sprintf("cloud%02d", i), "ticket": "7", "force": "True"})
			}(i)
		}
		wg.Wait()
		for _, res := range results {
			expect(t, res, http.StatusOK)
		}
	})
}

type brokenStore struct {
	storage.Store
}

var errDisk = errors.New("disk on fire")

func (brokenStore) Upsert(context.Context, models.Collection, string, models.Document, models.Document, bool) (storage.Outcome, error) {
	return 0, errDisk
}

func (brokenStore) ModifyFirst(context.Context, models.Collection, storage.Filter, storage.Modifier) ([]string, error) {
	return nil, errDisk
}

func (brokenStore) UpdateFirst(context.Context, models.Collection, storage.Filter, models.Update) error {
	return errDisk
}

func TestPersistenceErrorIsReported(t *testing.T) {
	store, err := storage.NewBadgerStore("")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	defer store.Close()

	healthy, _ := newServerOn(t, store)
	seedCloud(t, healthy, "cloud01")
	expect(t, mustResource(t, healthy, "host").Save(context.Background(), models.Fields{"host": "h1", "cloud": "cloud01"}), http.StatusCreated)

	s, _ := newServerOn(t, brokenStore{Store: store})
	ctx := context.Background()
	expect(t, mustResource(t, s, "cloud").Save(ctx, models.Fields{"cloud": "cloud02"}), http.StatusInternalServerError, "Error: disk on fire")

	ifaces, _ := s.Property("interfaces")
	expect(t, ifaces.Save(ctx, models.Fields{"host": "h1", "name": "em1"}), http.StatusInternalServerError, "Error: disk on fire")
	expect(t, ifaces.Remove(ctx, "em1", "h1"), http.StatusInternalServerError, "Error: disk on fire")
}

// vanishingStore deletes the parent host right before the write, as a
// concurrent delete landing between validation and update would.
type vanishingStore struct {
	storage.Store
}

func (v vanishingStore) ModifyFirst(ctx context.Context, c models.Collection, f storage.Filter, fn storage.Modifier) ([]string, error) {
	if err := v.Store.DeleteFirst(ctx, c, f); err != nil {
		return nil, err
	}
	return v.Store.ModifyFirst(ctx, c, f, fn)
}

func TestPropertySaveParentVanished(t *testing.T) {
	store, err := storage.NewBadgerStore("")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	defer store.Close()

	s, rec := newServerOn(t, vanishingStore{Store: store})
	sched := seedHost(t, s)
	res := sched.Save(context.Background(), models.Fields{
		"host": "h1", "cloud": "cloud02", "start": "2027-01-01 00:00", "end": "2027-01-02 00:00",
	})
	expect(t, res, http.StatusNotFound, "schedule Not Found for host h1")
	for _, k := range rec.kinds() {
		if k == "host.property_added" {
			t.Fatalf("event emitted for lost parent: %v", rec.kinds())
		}
	}
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	s, rec := newTestServer(t)
	rec.err = errors.New("nats not connected")
	expect(t, mustResource(t, s, "cloud").Save(context.Background(), models.Fields{"cloud": "cloud01"}), http.StatusCreated)
}
