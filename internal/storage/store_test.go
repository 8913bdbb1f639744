package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/devghori1264/quads/internal/models"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	b, err := NewBadgerStore("")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "quads.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return map[string]Store{"badger": b, "sqlite": s}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

func TestUpsertCreateConflictUpdate(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := models.Clouds

		out, err := s.Upsert(ctx, c, "cloud",
			models.Document{"cloud": "cloud01", "owner": "alice"},
			models.Document{"ticket": "000000"}, false)
		if err != nil || out != Created {
			t.Fatalf("create: out=%v err=%v", out, err)
		}

		out, err = s.Upsert(ctx, c, "cloud", models.Document{"cloud": "cloud01", "owner": "bob"}, nil, false)
		if err != nil || out != Exists {
			t.Fatalf("conflict: out=%v err=%v", out, err)
		}
		doc, err := s.First(ctx, c, Filter{"cloud": "cloud01"})
		if err != nil {
			t.Fatalf("first: %v", err)
		}
		if doc.Text("owner") != "alice" {
			t.Fatalf("conflicting upsert mutated document: %v", doc)
		}

		out, err = s.Upsert(ctx, c, "cloud",
			models.Document{"cloud": "cloud01", "ticket": "1234"},
			models.Document{"owner": "nobody"}, true)
		if err != nil || out != Updated {
			t.Fatalf("update: out=%v err=%v", out, err)
		}
		doc, _ = s.First(ctx, c, Filter{"cloud": "cloud01"})
		if doc.Text("ticket") != "1234" {
			t.Fatalf("ticket not updated: %v", doc)
		}
		if doc.Text("owner") != "alice" {
			t.Fatalf("default clobbered existing owner: %v", doc)
		}
		if doc.Text("id") == "" || doc.Text("created_at") == "" {
			t.Fatalf("missing stamps: %v", doc)
		}
	})
}

func TestUpsertByNonKeyField(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := models.Clouds
		if _, err := s.Upsert(ctx, c, "owner", models.Document{"cloud": "cloud01", "owner": "alice"}, nil, false); err != nil {
			t.Fatalf("create: %v", err)
		}

		// different owner, same primary key
		_, err := s.Upsert(ctx, c, "owner", models.Document{"cloud": "cloud01", "owner": "bob"}, nil, false)
		if !errors.Is(err, ErrExists) {
			t.Fatalf("expected ErrExists on key collision, got %v", err)
		}

		// force update found by owner may rename the key
		out, err := s.Upsert(ctx, c, "owner", models.Document{"cloud": "cloud09", "owner": "alice"}, nil, true)
		if err != nil || out != Updated {
			t.Fatalf("rename: out=%v err=%v", out, err)
		}
		docs, _ := s.Find(ctx, c, nil)
		if len(docs) != 1 || docs[0].Text("cloud") != "cloud09" {
			t.Fatalf("expected single renamed cloud, got %v", docs)
		}
	})
}

func TestFindOrderAndFilter(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, name := range []string{"h3", "h1", "h2"} {
			cloud := "cloud01"
			if name == "h2" {
				cloud = "cloud02"
			}
			if _, err := s.Upsert(ctx, models.Hosts, "host", models.Document{"host": name, "cloud": cloud}, nil, false); err != nil {
				t.Fatalf("create %s: %v", name, err)
			}
		}
		all, err := s.Find(ctx, models.Hosts, nil)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(all) != 3 || all[0].Text("host") != "h1" || all[2].Text("host") != "h3" {
			t.Fatalf("unexpected order: %v", all)
		}
		some, _ := s.Find(ctx, models.Hosts, Filter{"cloud": "cloud01"})
		if len(some) != 2 {
			t.Fatalf("expected 2 hosts in cloud01, got %d", len(some))
		}
		clouds, _ := s.Find(ctx, models.Clouds, nil)
		if len(clouds) != 0 {
			t.Fatalf("collections leak into each other: %v", clouds)
		}
	})
}

func TestUpdateAndDeleteFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := models.Hosts
		if _, err := s.Upsert(ctx, c, "host", models.Document{"host": "h1"}, nil, false); err != nil {
			t.Fatalf("create: %v", err)
		}

		u := models.Update{Set: map[string]any{"schedule.0": map[string]any{"cloud": "cloud02"}}}
		if err := s.UpdateFirst(ctx, c, Filter{"host": "h1"}, u); err != nil {
			t.Fatalf("update: %v", err)
		}
		doc, _ := s.First(ctx, c, Filter{"host": "h1"})
		if len(doc.Property("schedule")) != 1 {
			t.Fatalf("schedule not stored: %v", doc)
		}

		if err := s.UpdateFirst(ctx, c, Filter{"host": "nope"}, u); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		if err := s.DeleteFirst(ctx, c, Filter{"host": "h1"}); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := s.DeleteFirst(ctx, c, Filter{"host": "h1"}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
		if _, err := s.First(ctx, c, Filter{"host": "h1"}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const n = 8
		outcomes := make([]Outcome, n)
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				outcomes[i], errs[i] = s.Upsert(ctx, models.Hosts, "host", models.Document{"host": "race"}, nil, false)
			}(i)
		}
		wg.Wait()

		created := 0
		for i := range outcomes {
			if errs[i] != nil {
				t.Fatalf("upsert %d: %v", i, errs[i])
			}
			switch outcomes[i] {
			case Created:
				created++
			case Exists:
			default:
				t.Fatalf("upsert %d: outcome %v", i, outcomes[i])
			}
		}
		if created != 1 {
			t.Fatalf("expected exactly one create, got %d", created)
		}
	})
}

func TestConcurrentUpdatesToDistinctDocuments(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const n = 20
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("cloud%02d", i)
			if _, err := s.Upsert(ctx, models.Clouds, "cloud", models.Document{"cloud": name}, nil, false); err != nil {
				t.Fatalf("create %s: %v", name, err)
			}
		}

		errs := make([]error, n)
		outcomes := make([]Outcome, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				doc := models.Document{"cloud": fmt.Sprintf("cloud%02d", i), "ticket": "4242"}
				outcomes[i], errs[i] = s.Upsert(ctx, models.Clouds, "cloud", doc, nil, true)
			}(i)
		}
		wg.Wait()

		for i := range errs {
			if errs[i] != nil || outcomes[i] != Updated {
				t.Fatalf("update cloud%02d: out=%v err=%v", i, outcomes[i], errs[i])
			}
		}
		docs, _ := s.Find(ctx, models.Clouds, Filter{"ticket": "4242"})
		if len(docs) != n {
			t.Fatalf("expected %d updated clouds, got %d", n, len(docs))
		}
	})
}

// appendEntry adds the next integer-keyed entry to the schedule property.
func appendEntry(doc models.Document) (models.Update, []string, error) {
	key := strconv.Itoa(len(doc.Property("schedule")))
	return models.Update{Set: map[string]any{"schedule." + key: map[string]any{"cloud": "cloud02"}}}, nil, nil
}

func TestModifyFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := models.Hosts
		if _, err := s.Upsert(ctx, c, "host", models.Document{"host": "h1"}, nil, false); err != nil {
			t.Fatalf("create: %v", err)
		}

		reject := func(models.Document) (models.Update, []string, error) {
			return models.Update{Set: map[string]any{"cloud": "nope"}}, []string{"rejected"}, nil
		}
		problems, err := s.ModifyFirst(ctx, c, Filter{"host": "h1"}, reject)
		if err != nil || len(problems) != 1 {
			t.Fatalf("reject: problems=%v err=%v", problems, err)
		}
		doc, _ := s.First(ctx, c, Filter{"host": "h1"})
		if _, ok := doc["cloud"]; ok {
			t.Fatalf("rejected change was written: %v", doc)
		}

		if _, err := s.ModifyFirst(ctx, c, Filter{"host": "h2"}, appendEntry); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestConcurrentModifyFirstSeesCommittedItems(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := models.Hosts
		if _, err := s.Upsert(ctx, c, "host", models.Document{"host": "h1"}, nil, false); err != nil {
			t.Fatalf("create: %v", err)
		}

		const n = 20
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.ModifyFirst(ctx, c, Filter{"host": "h1"}, appendEntry)
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Fatalf("modify %d: %v", i, err)
			}
		}
		doc, _ := s.First(ctx, c, Filter{"host": "h1"})
		if got := len(doc.Property("schedule")); got != n {
			t.Fatalf("expected %d entries, got %d", n, got)
		}
	})
}
