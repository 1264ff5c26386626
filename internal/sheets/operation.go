package sheets

import (
	"context"

	"github.com/google/uuid"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Kind selects which API call an operation performs.
type Kind string

const (
	OpSpreadsheetGet Kind = "spreadsheet.get"
	OpValuesGet      Kind = "values.get"
	OpValuesUpdate   Kind = "values.update"
	OpBatchUpdate    Kind = "batch.update"
)

// Operation is one unit of Sheets work, carried as plain data so a
// queued call can be logged and inspected before it runs. The queue
// executes operations strictly in submission order, one at a time.
// Exactly the payload fields for the operation's kind are set.
type Operation struct {
	ID            string
	Kind          Kind
	Name          string
	SpreadsheetID string
	Range         string
	Values        *sheetsapi.ValueRange
	Batch         *sheetsapi.BatchUpdateSpreadsheetRequest
}

// NewSpreadsheetGet reads spreadsheet metadata (sheet list and ids).
func NewSpreadsheetGet(spreadsheetID string) Operation {
	return Operation{
		ID:            uuid.NewString(),
		Kind:          OpSpreadsheetGet,
		Name:          "spreadsheet.get",
		SpreadsheetID: spreadsheetID,
	}
}

// NewValuesGet reads a cell range.
func NewValuesGet(spreadsheetID, readRange string) Operation {
	return Operation{
		ID:            uuid.NewString(),
		Kind:          OpValuesGet,
		Name:          "values.get",
		SpreadsheetID: spreadsheetID,
		Range:         readRange,
	}
}

// NewValuesUpdate writes a cell range.
func NewValuesUpdate(spreadsheetID, writeRange string, values *sheetsapi.ValueRange) Operation {
	return Operation{
		ID:            uuid.NewString(),
		Kind:          OpValuesUpdate,
		Name:          "values.update",
		SpreadsheetID: spreadsheetID,
		Range:         writeRange,
		Values:        values,
	}
}

// NewBatchUpdate issues a structural batchUpdate. The name labels the
// concrete request (add sheet, delete rows, insert rows) in logs.
func NewBatchUpdate(name, spreadsheetID string, req *sheetsapi.BatchUpdateSpreadsheetRequest) Operation {
	return Operation{
		ID:            uuid.NewString(),
		Kind:          OpBatchUpdate,
		Name:          name,
		SpreadsheetID: spreadsheetID,
		Batch:         req,
	}
}

// Future delivers the result of a queued operation exactly once.
type Future struct {
	done   chan struct{}
	result interface{}
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(result interface{}, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Wait blocks until the operation finished or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
