package dedup

import (
	"fmt"
	"sync"
	"testing"
)

func TestResolveSequence(t *testing.T) {
	idx := New()

	want := []string{"report.zip", "report_02.zip", "report_03.zip", "report_04.zip"}
	for i, expected := range want {
		if got := idx.Resolve("report.zip"); got != expected {
			t.Errorf("call %d: got %q, want %q", i+1, got, expected)
		}
	}

	if got := idx.Count("report.zip"); got != 4 {
		t.Errorf("expected count 4, got %d", got)
	}
}

func TestResolveIndependentNames(t *testing.T) {
	idx := New()

	if got := idx.Resolve("a.tar.gz"); got != "a.tar.gz" {
		t.Errorf("got %q", got)
	}
	if got := idx.Resolve("b.tar.gz"); got != "b.tar.gz" {
		t.Errorf("got %q", got)
	}
	if got := idx.Resolve("a.tar.gz"); got != "a.tar_02.gz" {
		t.Errorf("got %q", got)
	}
}

func TestResolveSkipsNamesAlreadyHandedOut(t *testing.T) {
	idx := New()

	got := []string{
		idx.Resolve("a_02.pdf"),
		idx.Resolve("a.pdf"),
		idx.Resolve("a.pdf"),
		idx.Resolve("a_02.pdf"),
		idx.Resolve("a.pdf"),
	}
	want := []string{"a_02.pdf", "a.pdf", "a_03.pdf", "a_02_02.pdf", "a_04.pdf"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: got %q, want %q", i+1, got[i], want[i])
		}
	}

	seen := make(map[string]bool)
	for _, name := range idx.Assignments() {
		if seen[name] {
			t.Errorf("name %q handed out twice", name)
		}
		seen[name] = true
	}

	if got := idx.Count("a.pdf"); got != 3 {
		t.Errorf("expected count 3, got %d", got)
	}
}

func TestSuffixed(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		expected string
	}{
		{"doc.pdf", 2, "doc_02.pdf"},
		{"doc.pdf", 10, "doc_10.pdf"},
		{"doc.pdf", 100, "doc_100.pdf"},
		{"README", 3, "README_03"},
		{".hidden", 2, "_02.hidden"},
	}

	for _, tt := range tests {
		if got := Suffixed(tt.name, tt.n); got != tt.expected {
			t.Errorf("Suffixed(%q, %d) = %q, want %q", tt.name, tt.n, got, tt.expected)
		}
	}
}

func TestResolveConcurrent(t *testing.T) {
	idx := New()

	const tasks = 100
	const workers = 10

	jobs := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				idx.Resolve("archive.zip")
			}
		}()
	}
	for i := 0; i < tasks; i++ {
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()

	assigned := idx.Assignments()
	if len(assigned) != tasks {
		t.Fatalf("expected %d assignments, got %d", tasks, len(assigned))
	}

	seen := make(map[string]bool, tasks)
	for _, name := range assigned {
		if seen[name] {
			t.Errorf("duplicate name %q", name)
		}
		seen[name] = true
	}

	if !seen["archive.zip"] {
		t.Error("expected the unsuffixed name to be assigned once")
	}
	for n := 2; n <= tasks; n++ {
		if name := Suffixed("archive.zip", n); !seen[name] {
			t.Errorf("missing %q", name)
		}
	}
}

func ExampleIndex_Resolve() {
	idx := New()
	fmt.Println(idx.Resolve("x.zip"))
	fmt.Println(idx.Resolve("x.zip"))
	// Output:
	// x.zip
	// x_02.zip
}
