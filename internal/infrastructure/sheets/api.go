package sheets

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

var scopes = []string{
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/drive.readonly",
}

// api is the slice of the Sheets surface the sink needs. The production
// implementation wraps the sheets/v4 service; tests substitute a fake.
type api interface {
	Tabs(ctx context.Context) ([]string, error)
	AddTab(ctx context.Context, title string, rows, cols int64) error
	Get(ctx context.Context, rangeA1 string) ([][]any, error)
	Clear(ctx context.Context, rangeA1 string) error
	Update(ctx context.Context, rangeA1 string, values [][]any) error
	Append(ctx context.Context, rangeA1 string, values [][]any) error
}

// googleAPI talks to one spreadsheet through the sheets/v4 client, retrying
// transient failures (429/5xx) with exponential backoff.
type googleAPI struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	retryConfig   retry.Config
}

func newGoogleAPI(ctx context.Context, serviceAccountFile, spreadsheetID string) (*googleAPI, error) {
	data, err := os.ReadFile(serviceAccountFile) // #nosec G304 -- operator-supplied credential path
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &googleAPI{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		retryConfig: retry.Config{
			MaxAttempts:   4,
			InitialDelay:  time.Second,
			BackoffPolicy: retry.BackoffExponential,
		},
	}, nil
}

func (g *googleAPI) Tabs(ctx context.Context) ([]string, error) {
	retryer := retry.New[[]string](g.retryConfig)
	return retryer.Do(ctx, func(ctx context.Context) ([]string, error) {
		resp, err := g.svc.Spreadsheets.Get(g.spreadsheetID).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get spreadsheet: %w", err)
		}
		titles := make([]string, 0, len(resp.Sheets))
		for _, s := range resp.Sheets {
			if s.Properties != nil {
				titles = append(titles, s.Properties.Title)
			}
		}
		return titles, nil
	})
}

func (g *googleAPI) AddTab(ctx context.Context, title string, rows, cols int64) error {
	retryer := retry.New[struct{}](g.retryConfig)
	_, err := retryer.Do(ctx, func(ctx context.Context) (struct{}, error) {
		req := &sheetsapi.BatchUpdateSpreadsheetRequest{
			Requests: []*sheetsapi.Request{{
				AddSheet: &sheetsapi.AddSheetRequest{
					Properties: &sheetsapi.SheetProperties{
						Title: title,
						GridProperties: &sheetsapi.GridProperties{
							RowCount:    rows,
							ColumnCount: cols,
						},
					},
				},
			}},
		}
		_, err := g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do()
		if err != nil {
			return struct{}{}, fmt.Errorf("add tab %s: %w", title, err)
		}
		return struct{}{}, nil
	})
	return err
}

func (g *googleAPI) Get(ctx context.Context, rangeA1 string) ([][]any, error) {
	retryer := retry.New[[][]any](g.retryConfig)
	return retryer.Do(ctx, func(ctx context.Context) ([][]any, error) {
		resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, rangeA1).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", rangeA1, err)
		}
		values := make([][]any, len(resp.Values))
		for i, row := range resp.Values {
			values[i] = row
		}
		return values, nil
	})
}

func (g *googleAPI) Clear(ctx context.Context, rangeA1 string) error {
	retryer := retry.New[struct{}](g.retryConfig)
	_, err := retryer.Do(ctx, func(ctx context.Context) (struct{}, error) {
		_, err := g.svc.Spreadsheets.Values.Clear(g.spreadsheetID, rangeA1, &sheetsapi.ClearValuesRequest{}).Context(ctx).Do()
		if err != nil {
			return struct{}{}, fmt.Errorf("clear %s: %w", rangeA1, err)
		}
		return struct{}{}, nil
	})
	return err
}

func (g *googleAPI) Update(ctx context.Context, rangeA1 string, values [][]any) error {
	retryer := retry.New[struct{}](g.retryConfig)
	_, err := retryer.Do(ctx, func(ctx context.Context) (struct{}, error) {
		vr := &sheetsapi.ValueRange{Values: values}
		_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, rangeA1, vr).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return struct{}{}, fmt.Errorf("update %s: %w", rangeA1, err)
		}
		return struct{}{}, nil
	})
	return err
}

func (g *googleAPI) Append(ctx context.Context, rangeA1 string, values [][]any) error {
	retryer := retry.New[struct{}](g.retryConfig)
	_, err := retryer.Do(ctx, func(ctx context.Context) (struct{}, error) {
		vr := &sheetsapi.ValueRange{Values: values}
		_, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, rangeA1, vr).
			ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		if err != nil {
			return struct{}{}, fmt.Errorf("append %s: %w", rangeA1, err)
		}
		return struct{}{}, nil
	})
	return err
}
