// Package sheets talks to the Google Sheets API through a serialized,
// rate-limited operation queue so concurrent callers never exceed the
// per-user quota.
package sheets

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// API is the narrow slice of the Sheets API the writer needs. The
// real implementation wraps *sheets.Service; tests provide a fake.
type API interface {
	Spreadsheet(ctx context.Context, spreadsheetID string) (*sheetsapi.Spreadsheet, error)
	ValuesGet(ctx context.Context, spreadsheetID, readRange string) (*sheetsapi.ValueRange, error)
	ValuesUpdate(ctx context.Context, spreadsheetID, writeRange string, vr *sheetsapi.ValueRange) error
	BatchUpdate(ctx context.Context, spreadsheetID string, req *sheetsapi.BatchUpdateSpreadsheetRequest) error
}

type googleAPI struct {
	service *sheetsapi.Service
}

// NewAPI authenticates with a service account credentials file and
// returns the live Sheets API.
func NewAPI(ctx context.Context, credentialsFile string) (API, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheetsapi.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return &googleAPI{service: srv}, nil
}

func (g *googleAPI) Spreadsheet(ctx context.Context, spreadsheetID string) (*sheetsapi.Spreadsheet, error) {
	return g.service.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
}

func (g *googleAPI) ValuesGet(ctx context.Context, spreadsheetID, readRange string) (*sheetsapi.ValueRange, error) {
	return g.service.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
}

func (g *googleAPI) ValuesUpdate(ctx context.Context, spreadsheetID, writeRange string, vr *sheetsapi.ValueRange) error {
	_, err := g.service.Spreadsheets.Values.Update(spreadsheetID, writeRange, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (g *googleAPI) BatchUpdate(ctx context.Context, spreadsheetID string, req *sheetsapi.BatchUpdateSpreadsheetRequest) error {
	_, err := g.service.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return err
}
