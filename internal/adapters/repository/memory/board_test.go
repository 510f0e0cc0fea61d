package memory

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"
)

type entry struct {
	id     string
	rating float64
}

func sorted(entries map[string]float64) []entry {
	out := make([]entry, 0, len(entries))
	for id, r := range entries {
		out = append(out, entry{id, r})
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].rating, out[i].id, out[j].rating, out[j].id) })
	return out
}

func TestBoard_OrderAndRank(t *testing.T) {
	b := &board{}
	ratings := map[string]float64{}
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("e%03d", rng.IntN(120))
		r := float64(900 + rng.IntN(200))
		old, had := ratings[id]
		b.move(id, old, had, r)
		ratings[id] = r
	}

	want := sorted(ratings)
	if b.len() != len(want) {
		t.Fatalf("len = %d, want %d", b.len(), len(want))
	}

	all := b.page(0, len(want))
	for i, id := range all {
		if id != want[i].id {
			t.Fatalf("position %d = %s, want %s", i, id, want[i].id)
		}
		if rank := b.rank(id, ratings[id]); rank != i+1 {
			t.Errorf("rank(%s) = %d, want %d", id, rank, i+1)
		}
	}
}

func TestBoard_Paging(t *testing.T) {
	b := &board{}
	for i := 0; i < 10; i++ {
		b.move(fmt.Sprintf("e%d", i), 0, false, float64(i))
	}

	page := b.page(3, 4)
	want := []string{"e6", "e5", "e4", "e3"}
	if fmt.Sprint(page) != fmt.Sprint(want) {
		t.Errorf("page = %v, want %v", page, want)
	}
	if got := b.page(9, 5); len(got) != 1 || got[0] != "e0" {
		t.Errorf("tail page = %v", got)
	}
	if got := b.page(20, 5); len(got) != 0 {
		t.Errorf("page past end = %v", got)
	}
}

func TestBoard_TieBreakByID(t *testing.T) {
	b := &board{}
	b.move("zed", 0, false, 1000)
	b.move("amy", 0, false, 1000)
	b.move("kim", 0, false, 1000)

	if got := b.page(0, 3); fmt.Sprint(got) != "[amy kim zed]" {
		t.Errorf("tie order = %v", got)
	}
	if rank := b.rank("zed", 1000); rank != 3 {
		t.Errorf("rank(zed) = %d", rank)
	}
	if rank := b.rank("ghost", 1000); rank != 0 {
		t.Errorf("rank of missing entry = %d", rank)
	}
}
