package exchange

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"triarb/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestFetchInstrumentsDecodesCatalog(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instruments" {
			http.NotFound(w, r)
			return
		}
		catalog := []types.InstrumentMeta{
			{InstrumentId: 1, Symbol: "BTCCAD", QuantityDecimals: 6, PriceTick: "0.01", MinQuantity: "0.0001"},
			{InstrumentId: 82, Symbol: "BTCUSDT", QuantityDecimals: 6, PriceTick: "0.01", MinQuantity: "0.0001"},
		}
		json.NewEncoder(w).Encode(catalog)
	}))
	defer srv.Close()

	client := NewMetadataClient(srv.URL, testLogger())
	result, err := client.FetchInstruments(context.Background())
	if err != nil {
		t.Fatalf("FetchInstruments: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("got %d instruments, want 2", len(result))
	}
	if result[0].Symbol != "BTCCAD" || result[0].QuantityDecimals != 6 {
		t.Errorf("unexpected first instrument: %+v", result[0])
	}
}

func TestFetchInstrumentsErrorsOnServerFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewMetadataClient(srv.URL, testLogger())
	client.http.SetRetryCount(0)

	_, err := client.FetchInstruments(context.Background())
	if err == nil {
		t.Fatal("expected error on a 5xx response")
	}
}

func TestPrecisionForFiltersAndMaps(t *testing.T) {
	t.Parallel()

	catalog := []types.InstrumentMeta{
		{InstrumentId: 1, QuantityDecimals: 6},
		{InstrumentId: 80, QuantityDecimals: 2},
		{InstrumentId: 999, QuantityDecimals: 8}, // not in the requested id set
	}

	prec := PrecisionFor(catalog, []types.InstrumentId{1, 80})
	if len(prec) != 2 {
		t.Fatalf("prec = %v, want exactly instruments 1 and 80", prec)
	}
	if prec[1] != 6 || prec[80] != 2 {
		t.Errorf("prec = %v, want {1:6, 80:2}", prec)
	}
}
