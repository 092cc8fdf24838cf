package recorder

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Recorder captures traffic records for later replay.
// Thread-safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	records []TrafficRecord
	writer  io.Writer // optional: stream records as they arrive
}

// New creates a new Recorder. If w is non-nil, records are also
// written to w as newline-delimited JSON as they arrive.
func New(w io.Writer) *Recorder {
	return &Recorder{
		writer: w,
	}
}

// Record captures a single traffic record, assigning an ID if it has none.
func (r *Recorder) Record(rec TrafficRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec)

	if r.writer != nil {
		if err := json.NewEncoder(r.writer).Encode(rec); err != nil {
			return fmt.Errorf("streaming record: %w", err)
		}
	}
	return nil
}

// Records returns a copy of all recorded traffic.
func (r *Recorder) Records() []TrafficRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TrafficRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of recorded items.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// ExportJSON writes all records to the given writer as a JSON array.
func (r *Recorder) ExportJSON(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	records := r.records
	if records == nil {
		records = []TrafficRecord{}
	}
	return enc.Encode(records)
}

// ExportFile writes all records to path as a JSON array. The file is
// replaced atomically, so a reader never sees a partial export.
func (r *Recorder) ExportFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := r.ExportJSON(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// LoadJSON reads traffic records written by ExportJSON (a JSON array) or
// streamed by Record (newline-delimited objects).
func LoadJSON(r io.Reader) ([]TrafficRecord, error) {
	br := bufio.NewReader(r)
	first, err := firstNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding traffic: %w", err)
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var records []TrafficRecord
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("decoding traffic: %w", err)
		}
		return records, nil
	}

	var records []TrafficRecord
	for {
		var rec TrafficRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decoding traffic record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
}

// firstNonSpace peeks at the first non-whitespace byte without consuming it.
func firstNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

// LoadFile reads traffic records from a file in either format LoadJSON
// accepts.
func LoadFile(path string) ([]TrafficRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return LoadJSON(f)
}
