package s3blob

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/deltasync/internal/domain"
)

const rawCSV = `timestamp,broker_name,type,rate,size,bbp_timestamp,level,original_timestamp
2024-03-14 07:00:00,BROKER_NY_A,offer,1.10000,100,1000,0,995
2024-03-14 07:00:00,BROKER_NY_B,bid,undefined,0,1002,0,997
2024-03-14 07:00:00,BROKER_NY_B,bid,1.10002,50,1005.0,0,1000
2024-03-14 07:00:00,BROKER_NY_B,bid,1.09990,80,1005,1,1000
`

func TestParseQuotes(t *testing.T) {
	quotes, err := ParseQuotes(strings.NewReader(rawCSV))
	require.NoError(t, err)
	require.Len(t, quotes, 3)

	assert.Equal(t, domain.Quote{
		Broker: "BROKER_NY_A", Side: domain.SideOffer, Level: 0,
		Rate: 1.1, Size: 100, FeedTS: 1000, SourceTS: 995,
	}, quotes[0])
	assert.Equal(t, int64(1005), quotes[1].FeedTS)
	assert.Equal(t, 1, quotes[2].Level)
}

func TestParseQuotes_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing column", "broker_name,type,rate\nA,bid,1.1\n"},
		{"bad rate", "broker_name,type,rate,size,bbp_timestamp,level,original_timestamp\nA,bid,abc,1,1,0,1\n"},
		{"bad side", "broker_name,type,rate,size,bbp_timestamp,level,original_timestamp\nA,ask,1.1,1,1,0,1\n"},
		{"fractional timestamp", "broker_name,type,rate,size,bbp_timestamp,level,original_timestamp\nA,bid,1.1,1,1.5,0,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuotes(strings.NewReader(tt.body))
			require.ErrorIs(t, err, domain.ErrMalformedQuote)
		})
	}
}

func TestParseQuotes_Empty(t *testing.T) {
	quotes, err := ParseQuotes(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestQuoteLoader(t *testing.T) {
	ctx := context.Background()
	bucket := newMemBucket()
	bucket.objects["14-03-2024/merged_raw_data.csv"] = []byte(rawCSV)
	bucket.objects["notes/readme.txt"] = []byte("x")

	loader := NewQuoteLoader(bucket, "merged_raw_data.csv")
	date, err := domain.ParseTradingDate("14-03-2024")
	require.NoError(t, err)

	ok, err := loader.Has(ctx, date)
	require.NoError(t, err)
	assert.True(t, ok)

	quotes, err := loader.LoadQuotes(ctx, date)
	require.NoError(t, err)
	assert.Len(t, quotes, 3)

	dates, err := loader.Dates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.TradingDate{date}, dates)

	missing, _ := domain.ParseTradingDate("15-03-2024")
	_, err = loader.LoadQuotes(ctx, missing)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
