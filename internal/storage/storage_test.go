package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	logx "winova/pkg/logx"
)

type testDoc struct {
	ID      string `json:"id,omitempty"`
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
	Rank    int    `json:"rank"`
	Active  bool   `json:"active"`
}

func openers(t *testing.T) map[string]func(t *testing.T) Gateway {
	t.Helper()
	return map[string]func(t *testing.T) Gateway{
		"memory": func(t *testing.T) Gateway { return NewMemory() },
		"file": func(t *testing.T) Gateway {
			g, err := Open(Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
			if err != nil {
				t.Fatalf("open file: %v", err)
			}
			return g
		},
		"sqlite": func(t *testing.T) Gateway {
			g, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "winova.db")}, logx.Nop())
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return g
		},
	}
}

func seed(t *testing.T, g Gateway) {
	t.Helper()
	ctx := context.Background()
	docs := []testDoc{
		{OwnerID: "u1", Title: "a", Rank: 2, Active: true},
		{OwnerID: "u2", Title: "b", Rank: 1, Active: false},
		{OwnerID: "u1", Title: "c", Rank: 3, Active: false},
		{OwnerID: "u1", Title: "d", Rank: 1, Active: true},
	}
	for _, d := range docs {
		if _, err := g.Insert(ctx, Alerts, d); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
}

func titles(ds []testDoc) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Title
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGatewayFind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{name: "insertion order", q: Query{}, want: []string{"a", "b", "c", "d"}},
		{name: "newest first", q: Query{Sort: "-"}, want: []string{"d", "c", "b", "a"}},
		{name: "owner filter", q: Query{Filter: map[string]any{"owner_id": "u1"}}, want: []string{"a", "c", "d"}},
		{name: "bool filter", q: Query{Filter: map[string]any{"active": true}}, want: []string{"a", "d"}},
		{name: "numeric filter", q: Query{Filter: map[string]any{"rank": 1}}, want: []string{"b", "d"}},
		{name: "sort by field", q: Query{Sort: "rank"}, want: []string{"b", "d", "a", "c"}},
		{name: "sort desc with ties newest first", q: Query{Sort: "-rank"}, want: []string{"c", "a", "d", "b"}},
		{name: "newest with limit", q: Newest("u1", 2), want: []string{"d", "c"}},
		{name: "no match", q: Query{Filter: map[string]any{"owner_id": "nobody"}}, want: []string{}},
	}

	for driver, open := range openers(t) {
		open := open
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			g := open(t)
			defer g.Close()
			seed(t, g)

			for _, tt := range tests {
				var got []testDoc
				if err := g.Find(context.Background(), Alerts, tt.q, &got); err != nil {
					t.Fatalf("%s: find: %v", tt.name, err)
				}
				if !equal(titles(got), tt.want) {
					t.Fatalf("%s: got %v want %v", tt.name, titles(got), tt.want)
				}
			}
		})
	}
}

func TestGatewayAssignsID(t *testing.T) {
	t.Parallel()

	for driver, open := range openers(t) {
		open := open
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			g := open(t)
			defer g.Close()
			ctx := context.Background()

			id, err := g.Insert(ctx, Reports, testDoc{OwnerID: "u1", Title: "x"})
			if err != nil || id == "" {
				t.Fatalf("insert: id=%q err=%v", id, err)
			}
			kept, err := g.Insert(ctx, Reports, testDoc{ID: "fixed", OwnerID: "u1", Title: "y"})
			if err != nil || kept != "fixed" {
				t.Fatalf("insert with id: id=%q err=%v", kept, err)
			}

			var got []testDoc
			if err := g.Find(ctx, Reports, Query{}, &got); err != nil {
				t.Fatalf("find: %v", err)
			}
			if len(got) != 2 || got[0].ID != id || got[1].ID != "fixed" {
				t.Fatalf("unexpected docs: %+v", got)
			}
		})
	}
}

func TestGatewayRejectsBadNames(t *testing.T) {
	t.Parallel()

	g := NewMemory()
	ctx := context.Background()
	if _, err := g.Insert(ctx, "bad name", testDoc{}); !errors.Is(err, ErrInvalidCollection) {
		t.Fatalf("expected ErrInvalidCollection, got %v", err)
	}
	var out []testDoc
	if err := g.Find(ctx, Alerts, Query{Filter: map[string]any{"a.b": 1}}, &out); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField for filter, got %v", err)
	}
	if err := g.Find(ctx, Alerts, Query{Sort: "-x')"}, &out); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField for sort, got %v", err)
	}
	if err := g.Find(ctx, Alerts, Query{}, out); err == nil {
		t.Fatalf("expected error for non-pointer out")
	}
	if _, err := g.Insert(ctx, Alerts, []int{1}); err == nil {
		t.Fatalf("expected error for non-object document")
	}
}

func TestClosedGatewayIsDisabled(t *testing.T) {
	t.Parallel()

	g := NewMemory()
	_ = g.Close()
	ctx := context.Background()
	if _, err := g.Insert(ctx, Alerts, testDoc{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("insert: expected ErrDisabled, got %v", err)
	}
	if err := g.Ping(ctx); !errors.Is(err, ErrDisabled) {
		t.Fatalf("ping: expected ErrDisabled, got %v", err)
	}
}

func TestDurableDriversSurviveReopen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  func(dir string) Config
	}{
		{name: "file", cfg: func(dir string) Config { return Config{Driver: "file", Path: dir} }},
		{name: "sqlite", cfg: func(dir string) Config {
			return Config{Driver: "sqlite", Path: filepath.Join(dir, "w.db")}
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			ctx := context.Background()

			g, err := Open(tt.cfg(dir), logx.Nop())
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			seed(t, g)
			if err := g.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			g, err = Open(tt.cfg(dir), logx.Nop())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer g.Close()
			if _, err := g.Insert(ctx, Alerts, testDoc{OwnerID: "u1", Title: "e"}); err != nil {
				t.Fatalf("insert after reopen: %v", err)
			}

			var got []testDoc
			if err := g.Find(ctx, Alerts, Newest("u1", 0), &got); err != nil {
				t.Fatalf("find: %v", err)
			}
			want := []string{"e", "d", "c", "a"}
			if !equal(titles(got), want) {
				t.Fatalf("got %v want %v", titles(got), want)
			}
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	g, err := Open(Config{}, logx.Nop())
	if err != nil || g == nil {
		t.Fatalf("empty driver should select memory: g=%v err=%v", g, err)
	}
}
