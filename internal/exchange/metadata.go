// metadata.go implements the REST client used once at startup to fetch
// per-instrument rounding precision from the venue's product catalog. This
// is the only REST surface the engine uses — order flow runs entirely over
// the WebSocket session (session.go).
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"triarb/pkg/types"
)

// MetadataClient fetches instrument metadata with retry on 5xx, matching
// the resilience posture of the rest of the engine's outbound calls.
type MetadataClient struct {
	http   *resty.Client
	logger *slog.Logger
}

func NewMetadataClient(baseURL string, logger *slog.Logger) *MetadataClient {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &MetadataClient{http: httpClient, logger: logger.With("component", "metadata_client")}
}

// FetchInstruments retrieves the full product catalog.
func (c *MetadataClient) FetchInstruments(ctx context.Context) ([]types.InstrumentMeta, error) {
	var result []types.InstrumentMeta
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/instruments")
	if err != nil {
		return nil, fmt.Errorf("fetch instruments: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch instruments: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

// PrecisionFor builds a triangle.Precision-shaped map (quantity decimals
// keyed by instrument id) out of a fetched catalog, restricted to the ids
// the caller cares about.
func PrecisionFor(instruments []types.InstrumentMeta, ids []types.InstrumentId) map[types.InstrumentId]int32 {
	want := make(map[types.InstrumentId]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	out := make(map[types.InstrumentId]int32, len(ids))
	for _, inst := range instruments {
		if want[inst.InstrumentId] {
			out[inst.InstrumentId] = inst.QuantityDecimals
		}
	}
	return out
}
