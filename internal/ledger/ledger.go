// Package ledger keeps the append-only upload history: one JSON record per
// line, readable by humans and by the dashboard.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Entry is one upload outcome. Entries are never mutated or deleted.
type Entry struct {
	Timestamp     string `json:"timestamp"`
	Channel       string `json:"channel"`
	Title         string `json:"title"`
	Artifact      string `json:"artifact"`
	DestinationID string `json:"destination_id,omitempty"`
	Status        string `json:"status"`
}

// Summary aggregates the ledger for the dashboard.
type Summary struct {
	PerChannel map[string]int
	Total      int
	Recent     []Entry
}

// Ledger appends entries to a single file. Appends are serialized; entries
// land in dispatch-completion order.
type Ledger struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Append writes one entry. A write error is surfaced, never swallowed.
func (l *Ledger) Append(e Entry) error {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open ledger %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// HasSuccess reports whether an artifact has already been uploaded to the
// channel. Re-dispatching such an artifact must be a no-op.
func (l *Ledger) HasSuccess(channel, artifact string) (bool, error) {
	entries, err := l.load()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Status == StatusSuccess && e.Channel == channel && e.Artifact == artifact {
			return true, nil
		}
	}
	return false, nil
}

// Summarize returns per-channel success counts and the most recent n entries.
func (l *Ledger) Summarize(n int) (*Summary, error) {
	entries, err := l.load()
	if err != nil {
		return nil, err
	}

	s := &Summary{PerChannel: make(map[string]int)}
	for _, e := range entries {
		if e.Status == StatusSuccess {
			s.PerChannel[e.Channel]++
			s.Total++
		}
	}
	if n > len(entries) {
		n = len(entries)
	}
	s.Recent = entries[len(entries)-n:]
	return s, nil
}

// Channels returns the channel names seen in the ledger, sorted.
func (s *Summary) Channels() []string {
	names := make([]string, 0, len(s.PerChannel))
	for ch := range s.PerChannel {
		names = append(names, ch)
	}
	sort.Strings(names)
	return names
}

func (l *Ledger) load() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", l.path, err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			// A torn trailing line from a crashed run is skipped, not fatal.
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", l.path, err)
	}
	return entries, nil
}
