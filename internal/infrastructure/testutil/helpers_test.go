package testutil

import (
	"sync"
	"testing"
	"time"
)

type recordingSeeder struct {
	mu    sync.Mutex
	order []string
	files map[string]string
}

func (s *recordingSeeder) Seed(path, content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[string]string)
	}
	s.order = append(s.order, path)
	s.files[path] = content
	return "1"
}

func TestClock(t *testing.T) {
	c := NewClock()
	if !c.Now().Equal(Epoch) {
		t.Fatalf("new clock: got %s, want %s", c.Now(), Epoch)
	}

	got := c.Advance(90 * time.Second)
	if want := Epoch.Add(90 * time.Second); !got.Equal(want) || !c.Now().Equal(want) {
		t.Fatalf("advance: got %s, want %s", got, want)
	}

	c.Set(Epoch)
	if !c.Now().Equal(Epoch) {
		t.Fatalf("set: got %s, want %s", c.Now(), Epoch)
	}
}

func TestWriteAndReadFile(t *testing.T) {
	dir := t.TempDir()

	WriteFile(t, dir, "guides/rules.md", "be kind")

	if got := ReadFile(t, dir, "guides/rules.md"); got != "be kind" {
		t.Fatalf("file content mismatch: got %q", got)
	}
}

func TestSeedWikiWritesIndexLast(t *testing.T) {
	s := &recordingSeeder{}

	revs := SeedWiki(s, "SUMMARY.md")

	if len(revs) != len(SamplePages)+1 {
		t.Fatalf("got %d revisions, want %d", len(revs), len(SamplePages)+1)
	}
	if last := s.order[len(s.order)-1]; last != "SUMMARY.md" {
		t.Fatalf("index must be seeded last, got %s", last)
	}
	if s.files["SUMMARY.md"] != SampleSummary {
		t.Fatal("index content mismatch")
	}
}

func TestSampleTOCMatchesPages(t *testing.T) {
	toc := SampleTOC()
	placements := toc.Placements()
	if len(placements) != len(SamplePages) {
		t.Fatalf("got %d placements, want %d", len(placements), len(SamplePages))
	}
	for _, p := range placements {
		if _, ok := SamplePages[p.Path]; !ok {
			t.Errorf("placement %s has no sample page", p.Path)
		}
	}
}

func TestEventually(t *testing.T) {
	n := 0
	Eventually(t, time.Second, func() bool {
		n++
		return n >= 3
	}, "counter reaches three")
}
