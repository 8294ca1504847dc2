package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/naturemedica/commerce/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDelhiveryTest(t *testing.T, handler http.Handler) *Delhivery {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewDelhivery(DelhiveryConfig{
		BaseURL: server.URL,
		APIKey:  "dl-api-key",
		Timeout: 5 * time.Second,
		Seller: SellerDetails{
			Name:           "Nature Medica",
			GSTIN:          "27AAAAA0000A1Z5",
			PickupLocation: "NM-WAREHOUSE-PUNE",
			PickupPincode:  "110001",
		},
	})
	require.NoError(t, err)
	return provider
}

func TestDelhivery_CreateShipment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cmu/create.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token dl-api-key", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "json", r.PostForm.Get("format"))

		var data delhiveryCreateData
		require.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("data")), &data))
		require.Len(t, data.Shipments, 1)
		assert.Equal(t, "NM000050", data.Shipments[0].Order)
		assert.Equal(t, "1000.00", data.Shipments[0].TotalAmount)
		assert.Equal(t, "0.00", data.Shipments[0].CODAmount)
		assert.Equal(t, "500", data.Shipments[0].WeightGrams)
		assert.Equal(t, "NM-WAREHOUSE-PUNE", data.PickupLoc.Name)

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"packages": []map[string]any{
				{"waybill": "DL1234567890", "refnum": "NM000050", "status": "Success"},
			},
		})
	})

	provider := newDelhiveryTest(t, mux)

	record, err := provider.CreateShipment(context.Background(), sampleCreateParams())
	require.NoError(t, err)
	assert.Equal(t, domain.CourierDelhivery, record.Provider)
	assert.Equal(t, "DL1234567890", record.TrackingID)
	assert.Equal(t, "DL1234567890", record.AWB)
	assert.Equal(t, "NM000050", record.OrderNumber)
}

func TestDelhivery_CreateShipment_ManifestRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cmu/create.json", func(w http.ResponseWriter, r *http.Request) {
		// Rejections come back as 200 with success=false.
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"packages": []map[string]any{
				{"waybill": "", "remarks": []string{"ClientWarehouse matching query does not exist."}},
			},
		})
	})

	provider := newDelhiveryTest(t, mux)

	_, err := provider.CreateShipment(context.Background(), sampleCreateParams())
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	assert.Contains(t, domain.ErrorMessage(err), "ClientWarehouse")
}

func TestDelhivery_CheckServiceability(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/c/api/pin-codes/json/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "411001", r.URL.Query().Get("filter_codes"))
		json.NewEncoder(w).Encode(map[string]any{
			"delivery_codes": []map[string]any{
				{"postal_code": map[string]any{"cod": "Y", "pre_paid": "Y", "pickup": "N"}},
			},
		})
	})

	provider := newDelhiveryTest(t, mux)

	result, err := provider.CheckServiceability(context.Background(), "411001")
	require.NoError(t, err)
	assert.True(t, result.CODAvailable)
	assert.True(t, result.PrepaidAvailable)
	assert.False(t, result.ReversePickupAvailable)
}

func TestDelhivery_CheckServiceability_UncoveredPincode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/c/api/pin-codes/json/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"delivery_codes": []any{}})
	})

	provider := newDelhiveryTest(t, mux)

	result, err := provider.CheckServiceability(context.Background(), "999999")
	require.NoError(t, err)
	assert.False(t, result.CODAvailable)
	assert.False(t, result.PrepaidAvailable)
}

func TestDelhivery_TrackByAWB(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/packages/json/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DL1234567890", r.URL.Query().Get("waybill"))
		json.NewEncoder(w).Encode(map[string]any{
			"ShipmentData": []map[string]any{{
				"Shipment": map[string]any{
					"AWB":         "DL1234567890",
					"ReferenceNo": "NM000050",
					"Status":      map[string]any{"Status": "Dispatched"},
					"ExpectedDeliveryDate": "2026-08-25",
					"Scans": []map[string]any{
						{"ScanDetail": map[string]any{
							"Scan": "Manifested", "ScanDateTime": "2026-08-20T12:00:00",
							"ScannedLocation": "Delhi_Hub", "StatusCode": "X-UCI",
						}},
						{"ScanDetail": map[string]any{
							"Scan": "In Transit", "ScanDateTime": "2026-08-21T08:30:00",
							"ScannedLocation": "Nagpur_Hub", "StatusCode": "X-ILT",
							"Instructions": "Shipment moving to destination",
						}},
					},
				},
			}},
		})
	})

	provider := newDelhiveryTest(t, mux)

	view, err := provider.TrackByAWB(context.Background(), "DL1234567890")
	require.NoError(t, err)
	assert.Equal(t, "Dispatched", view.CurrentStatus)
	assert.Equal(t, "NM000050", view.OrderRef)
	require.Len(t, view.Activities, 2)
	assert.Equal(t, "Shipment moving to destination", view.Activities[0].Activity, "instructions preferred over scan name, newest first")
	assert.Equal(t, "Manifested", view.Activities[1].Activity)
}

func TestDelhivery_TrackByAWB_Unknown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/packages/json/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ShipmentData": []any{}})
	})

	provider := newDelhiveryTest(t, mux)

	_, err := provider.TrackByAWB(context.Background(), "BOGUS")
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}
