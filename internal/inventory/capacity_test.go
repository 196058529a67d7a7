package inventory

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateCapacity(t *testing.T) {
	tests := []struct {
		name      string
		limit     int64
		ledgerSum int64
		entryQty  int64
		delta     int64
		wantErr   error
	}{
		{name: "credit within limit", limit: 100, ledgerSum: 50, entryQty: 50, delta: 40},
		{name: "credit up to exact limit", limit: 100, ledgerSum: 50, entryQty: 50, delta: 50},
		{name: "credit over limit", limit: 100, ledgerSum: 50, entryQty: 50, delta: 60, wantErr: ErrCapacityExceeded},
		{name: "zero limit is unlimited", limit: 0, ledgerSum: 5000, entryQty: 5000, delta: 100000},
		{name: "negative limit is unlimited", limit: -1, ledgerSum: 10, entryQty: 10, delta: 100},
		{name: "debit below zero entry", limit: 0, ledgerSum: 100, entryQty: 30, delta: -40, wantErr: ErrNegativeStock},
		{name: "debit to exactly zero", limit: 0, ledgerSum: 30, entryQty: 30, delta: -30},
		{name: "unlimited still rejects negative", limit: 0, ledgerSum: 10, entryQty: 10, delta: -20, wantErr: ErrNegativeStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wh := WarehouseState{ID: 1, Limit: tt.limit}
			err := validateCapacity(nil, wh, tt.ledgerSum, tt.entryQty, tt.delta)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNearCapacityWarnsButSucceeds(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	wh := WarehouseState{ID: 1, Code: "WH-1", Limit: 100}

	// Projected 95 of 100 crosses the warning threshold.
	require.NoError(t, validateCapacity(logger, wh, 80, 80, 15))
	require.Contains(t, buf.String(), "warehouse nearing capacity")
	require.Contains(t, buf.String(), "projected=95")

	// Projected 60 of 100 stays quiet.
	buf.Reset()
	require.NoError(t, validateCapacity(logger, wh, 50, 50, 10))
	require.Empty(t, buf.String())
}
