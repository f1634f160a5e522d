package provider

import (
	"errors"
	"math"
	"testing"
)

func TestSeconds(t *testing.T) {
	tests := []struct {
		name    string
		in      float64
		want    int64
		wantErr bool
	}{
		{"Rounds half up", 59.5, 60, false},
		{"Negative reads as zero", -12, 0, false},
		{"Zero", 0, 0, false},
		{"Largest exact below limit", 9.2e18, 9200000000000000000, false},
		{"Two to the sixty-third", math.Pow(2, 63), 0, true},
		{"Far beyond int64", 1e19, 0, true},
		{"NaN", math.NaN(), 0, true},
		{"Positive infinity", math.Inf(1), 0, true},
		{"Negative infinity", math.Inf(-1), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := seconds(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("seconds(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errSecondsRange) {
				t.Errorf("error should wrap errSecondsRange: %v", err)
			}
			if got != tt.want {
				t.Errorf("seconds(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeSummariesRejectsOverflowingSum(t *testing.T) {
	body := []byte(`{"data":[{"grand_total":{"total_seconds":9e18}},{"grand_total":{"total_seconds":9e18}}]}`)
	if _, err := decodeSummaries(body); !errors.Is(err, errSecondsRange) {
		t.Errorf("expected range error, got %v", err)
	}

	res, err := decodeSummaries([]byte(`{"data":[{"grand_total":{"total_seconds":3600}},{"grand_total":{"total_seconds":1800.4}}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalSeconds != 5400 {
		t.Errorf("TotalSeconds = %d, want 5400", res.TotalSeconds)
	}
}
