// Package pipeline buffers completed results in catalogue order and writes
// the final dataset.
package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lmoreira/bookharvest/models"
)

// Failure records one terminally failed catalogue item.
type Failure struct {
	Index int
	URL   string
	Err   error
}

type slot struct {
	record *models.BookRecord
	err    error
	filled bool
}

// Collector keeps an index-keyed slot array sized at discovery time. Slots
// fill in arbitrary completion order, exactly once each; emission order is
// always strictly increasing by index regardless of worker count. A single
// mutex guards all slots — no two writers ever race on the same index, but
// the counters must stay consistent with the slots.
type Collector struct {
	mu        sync.Mutex
	slots     []slot
	filled    int
	succeeded int
	failed    int
	failures  []Failure
}

// NewCollector allocates slots for n catalogue items.
func NewCollector(n int) *Collector {
	return &Collector{slots: make([]slot, n)}
}

// Put stores a successful record for index.
func (c *Collector) Put(index int, record *models.BookRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.claim(index); err != nil {
		return err
	}
	c.slots[index].record = record
	c.succeeded++
	return nil
}

// Fail marks index as terminally failed.
func (c *Collector) Fail(index int, url string, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.claim(index); err != nil {
		return err
	}
	c.slots[index].err = cause
	c.failed++
	c.failures = append(c.failures, Failure{Index: index, URL: url, Err: cause})
	return nil
}

func (c *Collector) claim(index int) error {
	if index < 0 || index >= len(c.slots) {
		return fmt.Errorf("collector: index %d out of range [0,%d)", index, len(c.slots))
	}
	if c.slots[index].filled {
		return fmt.Errorf("collector: slot %d already filled", index)
	}
	c.slots[index].filled = true
	c.filled++
	return nil
}

// Records returns the successful records ordered by catalogue index. Failed
// slots are omitted.
func (c *Collector) Records() []*models.BookRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*models.BookRecord, 0, c.succeeded)
	for i := range c.slots {
		if c.slots[i].record != nil {
			out = append(out, c.slots[i].record)
		}
	}
	return out
}

// Failures returns the terminally failed items sorted by index.
func (c *Collector) Failures() []Failure {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Failure, len(c.failures))
	copy(out, c.failures)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Counts returns the succeeded and failed totals.
func (c *Collector) Counts() (succeeded, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.succeeded, c.failed
}

// Snapshot returns progress counters for the reporter.
func (c *Collector) Snapshot() (done, succeeded, failed, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filled, c.succeeded, c.failed, len(c.slots)
}
