package logs

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/narvanalabs/cnpj-monitor/internal/models"
)

// For any sequence of appended log lines, the container never holds more than
// its capacity and always holds the most recent lines in arrival order.
func TestPropertyContainerKeepsMostRecent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("container holds the last min(n, capacity) entries in order", prop.ForAll(
		func(n int, capacity int) bool {
			c := NewContainer(capacity)
			all := make([]models.LogEntry, n)
			for i := 0; i < n; i++ {
				all[i] = models.LogEntry{Level: models.LogLevelInfo, Message: fmt.Sprintf("line %d", i)}
				c.Add(all[i])
				if c.Len() > capacity {
					t.Logf("len %d exceeded capacity %d after %d adds", c.Len(), capacity, i+1)
					return false
				}
			}

			want := all
			if len(want) > capacity {
				want = want[len(want)-capacity:]
			}
			got := c.GetAll()
			if len(got) != len(want) {
				t.Logf("got %d entries, want %d", len(got), len(want))
				return false
			}
			for i := range want {
				if got[i] != want[i] {
					t.Logf("entry %d: got %q, want %q", i, got[i].Message, want[i].Message)
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 500),
		gen.IntRange(1, 150),
	))

	properties.Property("GetLast returns the newest entries in order", prop.ForAll(
		func(n int, last int) bool {
			c := NewContainer(DefaultMaxLines)
			for i := 0; i < n; i++ {
				c.Add(models.LogEntry{Message: fmt.Sprintf("%d", i)})
			}
			got := c.GetLast(last)
			kept := n
			if kept > DefaultMaxLines {
				kept = DefaultMaxLines
			}
			want := last
			if want > kept {
				want = kept
			}
			if len(got) != want {
				return false
			}
			for i, e := range got {
				if e.Message != fmt.Sprintf("%d", n-want+i) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 300),
		gen.IntRange(1, 120),
	))

	properties.TestingRun(t)
}

func TestContainerDefaultCapacity(t *testing.T) {
	c := NewContainer(0)
	if c.MaxLines() != 100 {
		t.Fatalf("MaxLines() = %d, want 100", c.MaxLines())
	}

	for i := 0; i < 101; i++ {
		c.Add(models.LogEntry{Message: fmt.Sprintf("%d", i)})
	}
	all := c.GetAll()
	if len(all) != 100 {
		t.Fatalf("Len = %d, want 100", len(all))
	}
	if all[0].Message != "1" || all[99].Message != "100" {
		t.Fatalf("oldest/newest = %q/%q, want 1/100", all[0].Message, all[99].Message)
	}
}

func TestContainerClear(t *testing.T) {
	c := NewContainer(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		c.Add(models.LogEntry{Message: msg})
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Len after Clear = %d", c.Len())
	}
	c.Add(models.LogEntry{Message: "e"})
	if got := c.GetAll(); len(got) != 1 || got[0].Message != "e" {
		t.Fatalf("after Clear+Add got %+v", got)
	}
	if c.GetLast(0) != nil {
		t.Fatal("GetLast(0) should be nil")
	}
}
