package provider

import (
	"errors"
	"fmt"
	"math"

	"github.com/goccy/go-json"

	"github.com/devpulse/stats-api/internal/models"
)

type namedSeconds struct {
	Name         string   `json:"name"`
	TotalSeconds *float64 `json:"total_seconds"`
}

type breakdown struct {
	Editors   []namedSeconds `json:"editors"`
	Languages []namedSeconds `json:"languages"`
	Projects  []namedSeconds `json:"projects"`
}

type summariesResponse struct {
	Data []struct {
		breakdown
		GrandTotal *struct {
			TotalSeconds *float64 `json:"total_seconds"`
		} `json:"grand_total"`
	} `json:"data"`
}

type statsResponse struct {
	Data *struct {
		breakdown
		TotalSeconds *float64 `json:"total_seconds"`
		DailyAverage *float64 `json:"daily_average"`
	} `json:"data"`
}

var (
	errNoTotal       = errors.New("missing total_seconds")
	errSecondsRange  = errors.New("seconds out of range")
	maxSecondsAsReal = float64(math.MaxInt64)
)

// seconds rounds a provider duration. Negative values read as zero; values
// that are not finite or do not fit an int64 are rejected.
func seconds(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= maxSecondsAsReal {
		return 0, fmt.Errorf("%w: %v", errSecondsRange, f)
	}
	if f <= 0 {
		return 0, nil
	}
	return int64(math.Round(f)), nil
}

func addSeconds(total int64, f float64) (int64, error) {
	n, err := seconds(f)
	if err != nil {
		return 0, err
	}
	if total > math.MaxInt64-n {
		return 0, fmt.Errorf("%w: sum overflows", errSecondsRange)
	}
	return total + n, nil
}

func toMap(items []namedSeconds) (map[string]int64, error) {
	if len(items) == 0 {
		return nil, nil
	}
	m := make(map[string]int64, len(items))
	for _, it := range items {
		if it.Name == "" || it.TotalSeconds == nil {
			continue
		}
		n, err := addSeconds(m[it.Name], *it.TotalSeconds)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", it.Name, err)
		}
		m[it.Name] = n
	}
	return m, nil
}

func (b breakdown) payload() (*models.StatPayload, error) {
	var (
		p   models.StatPayload
		err error
	)
	if p.Editors, err = toMap(b.Editors); err != nil {
		return nil, err
	}
	if p.Languages, err = toMap(b.Languages); err != nil {
		return nil, err
	}
	if p.Projects, err = toMap(b.Projects); err != nil {
		return nil, err
	}
	if p.Editors == nil && p.Languages == nil && p.Projects == nil {
		return nil, nil
	}
	return &p, nil
}

// decodeSummaries sums every day in the response; a single-day request
// normally has exactly one entry.
func decodeSummaries(body []byte) (models.FetchResult, error) {
	var resp summariesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.FetchResult{}, err
	}
	if resp.Data == nil {
		return models.FetchResult{}, errors.New("missing data")
	}

	res := models.FetchResult{Status: models.StatusOK}
	var payload *models.StatPayload
	for _, day := range resp.Data {
		if day.GrandTotal == nil || day.GrandTotal.TotalSeconds == nil {
			return models.FetchResult{}, errNoTotal
		}
		total, err := addSeconds(res.TotalSeconds, *day.GrandTotal.TotalSeconds)
		if err != nil {
			return models.FetchResult{}, err
		}
		res.TotalSeconds = total
		p, err := day.payload()
		if err != nil {
			return models.FetchResult{}, err
		}
		if p != nil {
			if payload == nil {
				payload = &models.StatPayload{}
			}
			payload.Add(p)
		}
	}
	res.Payload = payload
	return res, nil
}

func decodeStats(body []byte) (models.FetchResult, error) {
	var resp statsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.FetchResult{}, err
	}
	if resp.Data == nil || resp.Data.TotalSeconds == nil {
		return models.FetchResult{}, errNoTotal
	}
	total, err := seconds(*resp.Data.TotalSeconds)
	if err != nil {
		return models.FetchResult{}, err
	}
	payload, err := resp.Data.payload()
	if err != nil {
		return models.FetchResult{}, err
	}
	res := models.FetchResult{
		Status:       models.StatusOK,
		TotalSeconds: total,
		Payload:      payload,
	}
	if resp.Data.DailyAverage != nil {
		if res.DailyAverageSeconds, err = seconds(*resp.Data.DailyAverage); err != nil {
			return models.FetchResult{}, err
		}
	}
	return res, nil
}
