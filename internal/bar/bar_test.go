package bar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_ExtractsTimestampAndSymbolHash(t *testing.T) {
	ts := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	id := ID(ts.UnixMilli(), "TQQQ")

	assert.Equal(t, ts.UnixMilli(), ExtractTimestampMs(id))
	assert.Equal(t, symbolHash16("TQQQ"), ExtractSymbolHash(id))
}

func TestID_SameTimestampDifferentSymbols(t *testing.T) {
	tsMs := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC).UnixMilli()

	tqqqID := ID(tsMs, "TQQQ")
	sqqqID := ID(tsMs, "SQQQ")

	assert.True(t, SameTimestamp(tqqqID, sqqqID))
	assert.NotEqual(t, ExtractSymbolHash(tqqqID), ExtractSymbolHash(sqqqID),
		"distinct symbols should not collide in this fixture")
}

func TestID_DeterministicAcrossCalls(t *testing.T) {
	tsMs := int64(1_700_000_000_000)
	assert.Equal(t, ID(tsMs, "SOXL"), ID(tsMs, "SOXL"))
}

func TestBar_Validate(t *testing.T) {
	tests := []struct {
		name    string
		b       Bar
		wantErr bool
	}{
		{
			name:    "valid",
			b:       New(time.Now(), "TQQQ", 100, 101, 99, 100.5, 1_000_000),
			wantErr: false,
		},
		{
			name:    "high_below_close",
			b:       Bar{Symbol: "TQQQ", Open: 100, High: 99, Low: 98, Close: 100.5, Volume: 1},
			wantErr: true,
		},
		{
			name:    "negative_volume",
			b:       Bar{Symbol: "TQQQ", Open: 100, High: 101, Low: 99, Close: 100, Volume: -1},
			wantErr: true,
		},
		{
			name:    "non_positive_price",
			b:       Bar{Symbol: "TQQQ", Open: 0, High: 1, Low: 0, Close: 1, Volume: 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.b.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRing_AppendOverwritesOldest(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Append(New(time.Now(), "TQQQ", float64(i), float64(i)+1, float64(i), float64(i), 1))
	}

	require.Equal(t, 3, r.Len())
	assert.True(t, r.Full())
	assert.Equal(t, 2.0, r.At(0).Close, "oldest retained bar should be index 2")
	assert.Equal(t, 4.0, r.Newest().Close)
}

func TestRing_SliceOrderedOldestFirst(t *testing.T) {
	r := NewRing(4)
	for i := 0; i < 4; i++ {
		r.Append(New(time.Now(), "TQQQ", float64(i), float64(i)+1, float64(i), float64(i), 1))
	}
	closes := r.Slice()
	require.Len(t, closes, 4)
	for i, b := range closes {
		assert.Equal(t, float64(i), b.Close)
	}
}

func TestRing_Clear(t *testing.T) {
	r := NewRing(2)
	r.Append(New(time.Now(), "TQQQ", 1, 2, 1, 1, 1))
	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Full())
}
