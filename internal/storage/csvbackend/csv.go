// Package csvbackend stores results as the two-column keyword,competition
// export. Unknown competition is written as N/A.
package csvbackend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/FranksOps/kwdig/internal/keyword"
	"github.com/FranksOps/kwdig/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{"keyword", "competition"}

// New opens filePath for appending, writing the header row when the file is
// new or empty.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv: %w", err)
	}

	b := &csvBackend{file: f}
	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		return b, nil
	}

	if _, err := b.readAll(); err != nil {
		f.Close()
		return nil, err
	}
	return b, nil
}

func (b *csvBackend) Save(ctx context.Context, r *storage.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek csv: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write([]string{r.Keyword, r.Competition.String()}); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	return nil
}

// Query returns rows in file order. The export carries no job or timestamp
// columns, so JobID and Since are not applied.
func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	all, err := b.readAll()
	if err != nil {
		return nil, err
	}

	filter.JobID = ""
	filter.Since = nil
	matched := make([]*storage.Record, 0, len(all))
	for _, r := range all {
		if filter.Match(r) {
			matched = append(matched, r)
		}
	}
	return filter.Page(matched), nil
}

// readAll must be called with mu held or before the backend is shared.
func (b *csvBackend) readAll() ([]*storage.Record, error) {
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek csv: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return []*storage.Record{}, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var records []*storage.Record
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		if len(row) != len(headers) {
			continue // skip malformed rows
		}
		c, err := keyword.ParseCompetition(row[1])
		if err != nil {
			continue
		}
		records = append(records, &storage.Record{
			Position:    len(records),
			Keyword:     row[0],
			Competition: c,
		})
	}
	return records, nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
