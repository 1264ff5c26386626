package reportapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"reportsync/internal/config"
	"reportsync/internal/models"

	"github.com/rs/zerolog"
)

// TokenSource supplies bearer tokens for authenticated calls and is
// told to discard state when the API rejects one.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// Reader fetches channel metrics from the reporting API and converts
// them into report rows, keeping only channels bound to a configured
// group.
type Reader struct {
	client *Client
	tokens TokenSource
	cfg    *config.Config
	logger zerolog.Logger
}

func NewReader(client *Client, tokens TokenSource, cfg *config.Config, logger *zerolog.Logger) *Reader {
	return &Reader{
		client: client,
		tokens: tokens,
		cfg:    cfg,
		logger: logger.With().Str("component", "report-reader").Logger(),
	}
}

// FetchRows reads the package analysis for one data date. The package
// list resolves internal package ids to channel names first, since the
// analysis endpoint reports stale display names.
func (r *Reader) FetchRows(ctx context.Context, date string) ([]models.ReportRow, error) {
	packages, err := r.packageNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch package list: %w", err)
	}

	analysis, err := r.packageAnalysis(ctx, date, date)
	if err != nil {
		return nil, fmt.Errorf("fetch package analysis: %w", err)
	}

	targets := make(map[string]struct{})
	for _, id := range r.cfg.ChannelIDs() {
		targets[id] = struct{}{}
	}

	loc, err := time.LoadLocation(models.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("load report timezone: %w", err)
	}
	now := time.Now().In(loc)

	var rows []models.ReportRow
	for _, item := range analysis {
		channel, _ := item["packageName"].(string)
		if id, ok := numberField(item, "packageId"); ok {
			if mapped, ok := packages[int64(id)]; ok {
				channel = mapped
			}
		}
		if _, ok := targets[channel]; !ok {
			continue
		}

		rows = append(rows, models.ReportRow{
			WrittenAt:     now,
			DataDate:      date,
			Channel:       channel,
			Registrations: intField(item, "newMemberCount"),
			NewPayers:     intField(item, "newMemberRechargeCount"),
			NewPayAmount:  floatField(item, "newMemberRechargeAmount"),
			TotalDeposit:  floatField(item, "rechargeAmount"),
			TotalWithdraw: floatField(item, "withdrawAmount"),
			DepositDiff:   floatField(item, "chargeWithdrawDiff"),
		})
	}

	r.logger.Info().Str("date", date).Int("rows", len(rows)).Msg("fetched report rows")
	return rows, nil
}

func (r *Reader) packageNames(ctx context.Context) (map[int64]string, error) {
	body, err := r.authenticated(ctx, "/api/Package/GetPageList", map[string]interface{}{
		"sortField": "id",
		"orderBy":   "Desc",
		"pageNo":    1,
		"pageSize":  1000,
	})
	if err != nil {
		return nil, err
	}

	names := make(map[int64]string)
	for _, entry := range listField(body) {
		item, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		id, idOK := numberField(item, "id")
		name, _ := item["channelPackageName"].(string)
		if idOK && name != "" {
			names[int64(id)] = name
		}
	}
	return names, nil
}

func (r *Reader) packageAnalysis(ctx context.Context, start, end string) ([]map[string]interface{}, error) {
	body, err := r.authenticated(ctx, "/api/RptDataAnalysis/GetPackageAnalysis", map[string]interface{}{
		"startTime": start,
		"endTime":   end,
		"pageNo":    1,
		"pageSize":  1000,
		"orderBy":   "Desc",
	})
	if err != nil {
		return nil, err
	}

	var items []map[string]interface{}
	for _, entry := range listField(body) {
		if item, ok := entry.(map[string]interface{}); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// authenticated performs one signed call, re-logging in once when the
// token is rejected mid-flight.
func (r *Reader) authenticated(ctx context.Context, endpoint string, params map[string]interface{}) (map[string]interface{}, error) {
	token, err := r.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Post(ctx, endpoint, params, token)
	if errors.Is(err, ErrUnauthorized) {
		r.logger.Warn().Str("endpoint", endpoint).Msg("token rejected, re-authenticating")
		if err := r.tokens.Invalidate(ctx); err != nil {
			return nil, err
		}
		token, err = r.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		resp, err = r.client.Post(ctx, endpoint, cloneParams(params), token)
	}
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// listField unwraps data.list from either envelope variant.
func listField(body map[string]interface{}) []interface{} {
	scope := body
	if inner, ok := body["response"].(map[string]interface{}); ok {
		scope = inner
	}
	data, ok := scope["data"].(map[string]interface{})
	if !ok {
		return nil
	}
	list, _ := data["list"].([]interface{})
	return list
}

func intField(item map[string]interface{}, key string) int64 {
	return int64(floatField(item, key))
}

func floatField(item map[string]interface{}, key string) float64 {
	switch v := item[key].(type) {
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// cloneParams copies the user-supplied params without the generated
// signing fields, so the retry is re-signed fresh.
func cloneParams(params map[string]interface{}) map[string]interface{} {
	clean := make(map[string]interface{}, len(params))
	for k, v := range params {
		if _, generated := signExcluded[k]; generated || k == "random" {
			continue
		}
		clean[k] = v
	}
	return clean
}
