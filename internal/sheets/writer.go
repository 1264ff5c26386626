package sheets

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"reportsync/internal/models"

	"github.com/rs/zerolog"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Column layout of both report sheets: A written-at, B group,
// C data date, D channel, E..J metrics. Header row is row 1.
const (
	colGroup = 1
	colDate  = 2

	lastColumn = "J"
)

// Writer performs the upsert protocols against report sheets. All
// API traffic goes through the serialized queue; sheet ids and header
// state are cached, while sheet existence is re-checked live on every
// write so an externally created tab is picked up.
type Writer struct {
	queue  *Queue
	logger zerolog.Logger

	mu       sync.Mutex
	sheetIDs map[string]int64
	headers  map[string]bool
}

func NewWriter(queue *Queue, logger *zerolog.Logger) *Writer {
	return &Writer{
		queue:    queue,
		logger:   logger.With().Str("component", "sheets_writer").Logger(),
		sheetIDs: make(map[string]int64),
		headers:  make(map[string]bool),
	}
}

func cacheKey(spreadsheetID, title string) string {
	return spreadsheetID + "!" + title
}

// EnsureSheet makes sure the tab exists, creating it when missing.
// The existence check is always live; only the resolved id is cached.
func (w *Writer) EnsureSheet(ctx context.Context, spreadsheetID, title string) error {
	id, ok, err := w.lookupSheetID(ctx, spreadsheetID, title)
	if err != nil {
		return err
	}

	if !ok {
		addReq := &sheetsapi.BatchUpdateSpreadsheetRequest{
			Requests: []*sheetsapi.Request{{
				AddSheet: &sheetsapi.AddSheetRequest{
					Properties: &sheetsapi.SheetProperties{Title: title},
				},
			}},
		}
		op := NewBatchUpdate("batch.add_sheet", spreadsheetID, addReq)
		if _, err := w.queue.Do(ctx, op); err != nil {
			return fmt.Errorf("add sheet %q: %w", title, err)
		}
		w.logger.Info().Str("sheet", title).Msg("created missing sheet")

		id, ok, err = w.lookupSheetID(ctx, spreadsheetID, title)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("sheet %q missing after create", title)
		}
	}

	w.mu.Lock()
	w.sheetIDs[cacheKey(spreadsheetID, title)] = id
	w.mu.Unlock()
	return nil
}

// SheetID resolves the numeric sheet id for a tab, cached per
// (spreadsheet, title) after the first successful lookup.
func (w *Writer) SheetID(ctx context.Context, spreadsheetID, title string) (int64, error) {
	key := cacheKey(spreadsheetID, title)
	w.mu.Lock()
	if id, ok := w.sheetIDs[key]; ok {
		w.mu.Unlock()
		return id, nil
	}
	w.mu.Unlock()

	id, ok, err := w.lookupSheetID(ctx, spreadsheetID, title)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("sheet %q not found", title)
	}

	w.mu.Lock()
	w.sheetIDs[key] = id
	w.mu.Unlock()
	return id, nil
}

func (w *Writer) lookupSheetID(ctx context.Context, spreadsheetID, title string) (int64, bool, error) {
	result, err := w.queue.Do(ctx, NewSpreadsheetGet(spreadsheetID))
	if err != nil {
		return 0, false, fmt.Errorf("get spreadsheet: %w", err)
	}

	spreadsheet := result.(*sheetsapi.Spreadsheet)
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == title {
			return sheet.Properties.SheetId, true, nil
		}
	}
	return 0, false, nil
}

// EnsureHeaders writes the header row unless a plausible one is
// already present. The check result is cached per sheet.
func (w *Writer) EnsureHeaders(ctx context.Context, spreadsheetID, title string) error {
	key := cacheKey(spreadsheetID, title)
	w.mu.Lock()
	if w.headers[key] {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	readRange := fmt.Sprintf("%s!1:1", title)
	result, err := w.queue.Do(ctx, NewValuesGet(spreadsheetID, readRange))
	if err != nil {
		return fmt.Errorf("read header row: %w", err)
	}

	vr := result.(*sheetsapi.ValueRange)
	if len(vr.Values) > 0 && len(vr.Values[0]) >= len(models.SheetHeaders) {
		w.mu.Lock()
		w.headers[key] = true
		w.mu.Unlock()
		return nil
	}

	headerRow := make([]interface{}, len(models.SheetHeaders))
	for i, h := range models.SheetHeaders {
		headerRow[i] = h
	}
	writeRange := fmt.Sprintf("%s!A1:%s1", title, lastColumn)
	writeOp := NewValuesUpdate(spreadsheetID, writeRange, &sheetsapi.ValueRange{
		Values: [][]interface{}{headerRow},
	})
	if _, err := w.queue.Do(ctx, writeOp); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}
	w.logger.Info().Str("sheet", title).Msg("wrote header row")

	w.mu.Lock()
	w.headers[key] = true
	w.mu.Unlock()
	return nil
}

// WriteDaily upserts rows keyed by (data date, group): any existing
// row carrying one of the incoming keys is removed, then the new rows
// are inserted directly under the header.
func (w *Writer) WriteDaily(ctx context.Context, spreadsheetID, title string, rows []models.ReportRow) error {
	if len(rows) == 0 {
		return nil
	}

	keys := make(map[[2]string]bool, len(rows))
	for _, r := range rows {
		keys[[2]string{r.DataDate, r.GroupName}] = true
	}

	return w.replaceRows(ctx, spreadsheetID, title, rows, func(existing []interface{}) bool {
		return keys[[2]string{cellString(existing, colDate), cellString(existing, colGroup)}]
	})
}

// WriteHourly upserts rows keyed by freshness: existing rows of an
// incoming group dated strictly before today are removed, then the
// fresh snapshot is inserted under the header. Same-day snapshots
// from earlier runs stay in place.
func (w *Writer) WriteHourly(ctx context.Context, spreadsheetID, title string, rows []models.ReportRow, today string) error {
	if len(rows) == 0 {
		return nil
	}

	groups := make(map[string]bool, len(rows))
	for _, r := range rows {
		groups[r.GroupName] = true
	}

	currentDate, err := time.Parse(models.DateLayout, today)
	if err != nil {
		return fmt.Errorf("parse today %q: %w", today, err)
	}

	return w.replaceRows(ctx, spreadsheetID, title, rows, func(existing []interface{}) bool {
		if !groups[cellString(existing, colGroup)] {
			return false
		}
		rowDate, err := time.Parse(models.DateLayout, cellString(existing, colDate))
		if err != nil {
			// Rows with unparseable dates are left alone.
			return false
		}
		return rowDate.Before(currentDate)
	})
}

// replaceRows deletes matching existing rows, opens a gap under the
// header and writes the new rows into it.
func (w *Writer) replaceRows(ctx context.Context, spreadsheetID, title string, rows []models.ReportRow, match func([]interface{}) bool) error {
	if err := w.EnsureSheet(ctx, spreadsheetID, title); err != nil {
		return err
	}
	sheetID, err := w.SheetID(ctx, spreadsheetID, title)
	if err != nil {
		return err
	}
	if err := w.EnsureHeaders(ctx, spreadsheetID, title); err != nil {
		return err
	}

	readRange := fmt.Sprintf("%s!A:%s", title, lastColumn)
	result, err := w.queue.Do(ctx, NewValuesGet(spreadsheetID, readRange))
	if err != nil {
		return fmt.Errorf("read existing rows: %w", err)
	}
	existing := result.(*sheetsapi.ValueRange)

	var doomed []int
	for i, row := range existing.Values {
		if i == 0 {
			continue // header
		}
		if match(row) {
			doomed = append(doomed, i)
		}
	}

	if len(doomed) > 0 {
		req := &sheetsapi.BatchUpdateSpreadsheetRequest{
			Requests: deleteRequests(sheetID, doomed),
		}
		op := NewBatchUpdate("batch.delete_rows", spreadsheetID, req)
		if _, err := w.queue.Do(ctx, op); err != nil {
			return fmt.Errorf("delete stale rows: %w", err)
		}
	}

	insertReq := &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{
			InsertDimension: &sheetsapi.InsertDimensionRequest{
				Range: &sheetsapi.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: 1,
					EndIndex:   int64(1 + len(rows)),
				},
				InheritFromBefore: false,
			},
		}},
	}
	insertOp := NewBatchUpdate("batch.insert_rows", spreadsheetID, insertReq)
	if _, err := w.queue.Do(ctx, insertOp); err != nil {
		return fmt.Errorf("insert rows: %w", err)
	}

	values := make([][]interface{}, len(rows))
	for i, r := range rows {
		values[i] = r.Values()
	}
	writeRange := fmt.Sprintf("%s!A2:%s%d", title, lastColumn, 1+len(rows))
	writeOp := NewValuesUpdate(spreadsheetID, writeRange, &sheetsapi.ValueRange{Values: values})
	if _, err := w.queue.Do(ctx, writeOp); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.logger.Info().
		Str("sheet", title).
		Int("written", len(rows)).
		Int("removed", len(doomed)).
		Msg("sheet updated")
	return nil
}

// deleteRequests folds sorted row indexes (0-based) into contiguous
// DeleteDimension ranges, emitted bottom-up so earlier deletions do
// not shift later ones.
func deleteRequests(sheetID int64, rowIndexes []int) []*sheetsapi.Request {
	sort.Ints(rowIndexes)

	type span struct{ start, end int } // [start, end)
	var spans []span
	for _, idx := range rowIndexes {
		if n := len(spans); n > 0 && spans[n-1].end == idx {
			spans[n-1].end = idx + 1
			continue
		}
		spans = append(spans, span{start: idx, end: idx + 1})
	}

	requests := make([]*sheetsapi.Request, 0, len(spans))
	for i := len(spans) - 1; i >= 0; i-- {
		requests = append(requests, &sheetsapi.Request{
			DeleteDimension: &sheetsapi.DeleteDimensionRequest{
				Range: &sheetsapi.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(spans[i].start),
					EndIndex:   int64(spans[i].end),
				},
			},
		})
	}
	return requests
}

func cellString(row []interface{}, idx int) string {
	if idx >= len(row) {
		return ""
	}
	s, _ := row[idx].(string)
	return s
}
