package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"ehs/internal/domain"
	"ehs/pkg/platform/resilience"
)

// Unit is one retrieval batch: a page or a date-range result set.
type Unit struct {
	Name    string
	Records []domain.RawRecord
}

// Source yields units until it returns io.EOF.
type Source interface {
	Next(ctx context.Context) (Unit, error)
}

// PageFetcher fetches one page of an agency that paginates, 1-based.
type PageFetcher func(ctx context.Context, page int) ([]domain.RawRecord, error)

// RangeFetcher fetches every record with an action date in [from, to).
type RangeFetcher func(ctx context.Context, from, to time.Time) ([]domain.RawRecord, error)

// PagedSource walks pages incrementally until an empty page.
type PagedSource struct {
	fetch PageFetcher
	page  int
	done  bool
}

func NewPagedSource(fetch PageFetcher, startPage int) *PagedSource {
	return &PagedSource{fetch: fetch, page: max(startPage, 1)}
}

func (p *PagedSource) Next(ctx context.Context) (Unit, error) {
	if p.done {
		return Unit{}, io.EOF
	}
	records, err := p.fetch(ctx, p.page)
	if err != nil {
		return Unit{}, fmt.Errorf("fetch page %d: %w", p.page, err)
	}
	if len(records) == 0 {
		p.done = true
		return Unit{}, io.EOF
	}
	u := Unit{Name: fmt.Sprintf("page %d", p.page), Records: records}
	p.page++
	return u, nil
}

// DateRangeSource fetches [from, to) in one query, or in consecutive windows
// of step when step is positive.
type DateRangeSource struct {
	fetch    RangeFetcher
	from, to time.Time
	step     time.Duration
	cursor   time.Time
}

func NewDateRangeSource(fetch RangeFetcher, from, to time.Time, step time.Duration) *DateRangeSource {
	return &DateRangeSource{fetch: fetch, from: from, to: to, step: step, cursor: from}
}

func (d *DateRangeSource) Next(ctx context.Context) (Unit, error) {
	if !d.cursor.Before(d.to) {
		return Unit{}, io.EOF
	}
	end := d.to
	if d.step > 0 && d.cursor.Add(d.step).Before(d.to) {
		end = d.cursor.Add(d.step)
	}
	records, err := d.fetch(ctx, d.cursor, end)
	if err != nil {
		return Unit{}, fmt.Errorf("fetch %s..%s: %w", d.cursor.Format(time.DateOnly), end.Format(time.DateOnly), err)
	}
	u := Unit{Name: d.cursor.Format(time.DateOnly) + ".." + end.Format(time.DateOnly), Records: records}
	d.cursor = end
	return u, nil
}

// GuardPages runs every page fetch under the guard, e.g. with the agency's
// rate limiter and the api_operations policy.
func GuardPages(g *resilience.Guard, call resilience.Call, fetch PageFetcher) PageFetcher {
	return func(ctx context.Context, page int) ([]domain.RawRecord, error) {
		return resilience.Value(ctx, g, call, func(ctx context.Context) ([]domain.RawRecord, error) {
			return fetch(ctx, page)
		})
	}
}

// GuardRange is GuardPages for date-range fetches.
func GuardRange(g *resilience.Guard, call resilience.Call, fetch RangeFetcher) RangeFetcher {
	return func(ctx context.Context, from, to time.Time) ([]domain.RawRecord, error) {
		return resilience.Value(ctx, g, call, func(ctx context.Context) ([]domain.RawRecord, error) {
			return fetch(ctx, from, to)
		})
	}
}

// SliceSource serves in-memory records in units of size.
type SliceSource struct {
	records []domain.RawRecord
	size    int
	offset  int
}

func NewSliceSource(records []domain.RawRecord, size int) *SliceSource {
	if size <= 0 {
		size = len(records)
	}
	return &SliceSource{records: records, size: max(size, 1)}
}

func (s *SliceSource) Next(context.Context) (Unit, error) {
	if s.offset >= len(s.records) {
		return Unit{}, io.EOF
	}
	end := min(s.offset+s.size, len(s.records))
	u := Unit{Name: fmt.Sprintf("records %d-%d", s.offset+1, end), Records: s.records[s.offset:end]}
	s.offset = end
	return u, nil
}

// JSONLinesSource reads one raw record per line. Blank lines are skipped.
type JSONLinesSource struct {
	scanner *bufio.Scanner
	size    int
	line    int
}

func NewJSONLinesSource(r io.Reader, size int) *JSONLinesSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &JSONLinesSource{scanner: sc, size: max(size, 1)}
}

func (j *JSONLinesSource) Next(ctx context.Context) (Unit, error) {
	first := j.line + 1
	var records []domain.RawRecord
	for len(records) < j.size && j.scanner.Scan() {
		j.line++
		line := j.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw domain.RawRecord
		if err := json.Unmarshal(line, &raw); err != nil {
			return Unit{}, fmt.Errorf("line %d: %w", j.line, err)
		}
		records = append(records, raw)
	}
	if err := j.scanner.Err(); err != nil {
		return Unit{}, err
	}
	if err := ctx.Err(); err != nil {
		return Unit{}, err
	}
	if len(records) == 0 {
		return Unit{}, io.EOF
	}
	return Unit{Name: fmt.Sprintf("lines %d-%d", first, j.line), Records: records}, nil
}
