package hvac

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/heatpilot/heatpilot/pkg/common"
	"github.com/heatpilot/heatpilot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeData(t *testing.T, w http.ResponseWriter, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	fmt.Fprintf(w, `{"code":0,"message":"","data":%s}`, raw)
}

func testCloud(t *testing.T, handler http.Handler) *Cloud {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := &Cloud{
		client:   common.HTTPClient(5 * time.Second),
		baseURL:  srv.URL,
		email:    "home@example.com",
		password: "hunter2",
	}
	require.NoError(t, c.ApplySettings(context.Background(), types.Settings{
		DeviceID:   "hp-1",
		BuildingID: "b-9",
	}))
	return c
}

func TestCloudEnhancedCOPData(t *testing.T) {
	ctx := context.Background()
	var logins int

	data := types.EnhancedCOPData{
		Current: types.COPReading{HeatingCOP: 3.2, HotWaterCOP: 2.4, Timestamp: time.Now().UTC().Truncate(time.Second)},
		Daily: types.DailyEnergyTotals{
			HeatingConsumedKWH: 5, HeatingProducedKWH: 16,
			HotWaterConsumedKWH: 2, HotWaterProducedKWH: 5,
		},
		Trends: types.COPTrends{Heating: types.COPTrendStable, HotWater: types.COPTrendImproving},
	}

	c := testCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			logins++
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "home@example.com", body["email"])
			writeData(t, w, loginResult{Token: "tok-1"})
		case "/api/v1/devices/hp-1/cop":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			assert.Equal(t, "b-9", r.URL.Query().Get("buildingId"))
			writeData(t, w, data)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))

	got, err := c.EnhancedCOPData(ctx)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, 1, logins)

	// token is reused for the next call
	got, err = c.EnhancedCOPData(ctx)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, 1, logins)
}

func TestCloudTokenExpiry(t *testing.T) {
	ctx := context.Background()
	var logins int

	c := testCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			logins++
			writeData(t, w, loginResult{Token: fmt.Sprintf("tok-%d", logins)})
		case "/api/v1/devices/hp-1/energy/daily":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			assert.Equal(t, "7", r.URL.Query().Get("days"))
			writeData(t, w, []types.DailyEnergyTotals{{HeatingConsumedKWH: 4}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	// simulate a stale token from an earlier session
	c.tokenStr = "tok-stale"

	totals, err := c.DailyEnergyTotals(ctx, 7)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, 4.0, totals[0].HeatingConsumedKWH)
	// the stale token got a 401 and forced exactly one fresh login
	assert.Equal(t, 1, logins)
}

func TestCloudSetpoints(t *testing.T) {
	ctx := context.Background()
	var gotZone, gotTank float64

	c := testCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			writeData(t, w, loginResult{Token: "tok-1"})
		case "/api/v1/devices/hp-1/zones/2/setpoint":
			var body map[string]float64
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			gotZone = body["setpoint"]
			writeData(t, w, struct{}{})
		case "/api/v1/devices/hp-1/tank/setpoint":
			var body map[string]float64
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			gotTank = body["setpoint"]
			writeData(t, w, struct{}{})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))

	require.NoError(t, c.SetZoneSetpoint(ctx, 2, 21.5))
	assert.Equal(t, 21.5, gotZone)

	require.NoError(t, c.SetTankSetpoint(ctx, 52))
	assert.Equal(t, 52.0, gotTank)

	require.Error(t, c.SetZoneSetpoint(ctx, 3, 21))
}

func TestCloudAPIError(t *testing.T) {
	ctx := context.Background()

	c := testCloud(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			writeData(t, w, loginResult{Token: "tok-1"})
		default:
			fmt.Fprint(w, `{"code":500,"message":"device offline"}`)
		}
	}))

	_, _, err := c.Temperatures(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device offline")
}

func TestCloudApplySettings(t *testing.T) {
	c := &Cloud{}
	require.Error(t, c.ApplySettings(context.Background(), types.Settings{}))
	require.NoError(t, c.ApplySettings(context.Background(), types.Settings{DeviceID: "hp-1"}))
	assert.Equal(t, "hp-1", c.deviceID)
}

func TestCloudValidate(t *testing.T) {
	c := &Cloud{}
	require.Error(t, c.Validate())
	c.baseURL = "https://cloud.example.com"
	require.Error(t, c.Validate())
	c.email = "home@example.com"
	require.Error(t, c.Validate())
	c.password = "hunter2"
	require.NoError(t, c.Validate())
}
