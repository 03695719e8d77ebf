package settings

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type mapStore map[string]string

func (m mapStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func TestPointsRate(t *testing.T) {
	tests := []struct {
		name  string
		store mapStore
		want  decimal.Decimal
	}{
		{
			name:  "valid integer rate",
			store: mapStore{KeyPointsConversionRate: "5"},
			want:  decimal.NewFromInt(5),
		},
		{
			name:  "valid fractional rate",
			store: mapStore{KeyPointsConversionRate: "2.5"},
			want:  decimal.RequireFromString("2.5"),
		},
		{
			name:  "missing key yields zero",
			store: mapStore{},
			want:  decimal.Zero,
		},
		{
			name:  "unparsable value yields zero",
			store: mapStore{KeyPointsConversionRate: "invalid"},
			want:  decimal.Zero,
		},
		{
			name:  "negative value yields zero",
			store: mapStore{KeyPointsConversionRate: "-3"},
			want:  decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PointsRate(context.Background(), tt.store)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}
