package hvac

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/heatpilot/heatpilot/pkg/common"
	"github.com/heatpilot/heatpilot/pkg/log"
	"github.com/heatpilot/heatpilot/pkg/types"
	"github.com/levenlabs/go-lflag"
)

const cloudLoginPath = "api/v1/auth/login"

// Cloud implements the Client interface against a vendor cloud API. It
// logs in with account credentials, keeps the session token and retries
// once on token expiry.
type Cloud struct {
	client   *http.Client
	baseURL  string
	email    string
	password string

	mu         sync.Mutex
	tokenStr   string
	deviceID   string
	buildingID string
}

// configuredCloud sets up flags for the vendor cloud client and returns
// the instance.
func configuredCloud() *Cloud {
	c := &Cloud{
		client: common.HTTPClient(time.Minute),
	}
	baseURL := lflag.String("hvac-api-url", "", "base URL for the heat pump vendor cloud API")
	email := lflag.String("hvac-email", "", "account email for the vendor cloud")
	password := lflag.String("hvac-password", "", "account password for the vendor cloud")

	lflag.Do(func() {
		c.baseURL = *baseURL
		c.email = *email
		c.password = *password
	})

	return c
}

// Validate ensures the configuration is valid.
func (c *Cloud) Validate() error {
	if c.baseURL == "" {
		return errors.New("hvac-api-url is required")
	}
	if _, err := url.Parse(c.baseURL); err != nil {
		return fmt.Errorf("failed to parse hvac url (%s): %w", c.baseURL, err)
	}
	if c.email == "" {
		return errors.New("hvac-email is required")
	}
	if c.password == "" {
		return errors.New("hvac-password is required")
	}
	return nil
}

// ApplySettings picks up the device and building identifiers.
func (c *Cloud) ApplySettings(_ context.Context, settings types.Settings) error {
	if settings.DeviceID == "" {
		return errors.New("deviceID is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceID = settings.DeviceID
	c.buildingID = settings.BuildingID
	return nil
}

type loginResult struct {
	Token     string `json:"token"`
	AccountID string `json:"accountId"`
}

// ensureLogin will not login again if the token we have cached is still
// valid.
func (c *Cloud) ensureLogin(ctx context.Context) error {
	if c.tokenStr != "" {
		return nil
	}
	token, err := c.login(ctx)
	if err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}
	c.tokenStr = token
	return nil
}

func (c *Cloud) login(ctx context.Context) (string, error) {
	if c.email == "" {
		return "", errors.New("missing email")
	}
	if c.password == "" {
		return "", errors.New("missing password")
	}

	req, err := c.newPostJSONRequest(ctx, cloudLoginPath, map[string]string{
		"email":    c.email,
		"password": c.password,
	})
	if err != nil {
		return "", err
	}

	var res loginResult
	if err := c.doRequest(req, &res); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "vendor cloud login failed", slog.Any("error", err))
		return "", fmt.Errorf("login failed: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "vendor cloud login success", slog.String("email", c.email))
	return res.Token, nil
}

func (c *Cloud) newGetRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}

	u.RawQuery = params.Encode()
	return http.NewRequestWithContext(ctx, "GET", u.String(), nil)
}

func (c *Cloud) newPostJSONRequest(ctx context.Context, endpoint string, data interface{}) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

type cloudResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Cloud) doRequest(req *http.Request, dest interface{}) error {
	isLogin := strings.HasSuffix(req.URL.Path, cloudLoginPath)

	// we try up to 2 times because we might have an expired token
	for i := 0; i < 2; i++ {
		if !isLogin {
			req.Header.Set("Authorization", "Bearer "+c.tokenStr)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized && !isLogin && c.tokenStr != "" {
			log.Ctx(req.Context()).DebugContext(req.Context(), "vendor cloud token expired")
			io.Copy(io.Discard, resp.Body)
			c.tokenStr = ""
			if err := c.ensureLogin(req.Context()); err != nil {
				return err
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		var cr cloudResponse
		if err := json.Unmarshal(body, &cr); err != nil {
			log.Ctx(req.Context()).ErrorContext(req.Context(), "failed to decode vendor cloud response",
				slog.Any("error", err), slog.String("body", string(body)))
			return err
		}

		if cr.Code != 0 && cr.Code != 200 {
			if cr.Message == "" {
				log.Ctx(req.Context()).ErrorContext(req.Context(), "vendor cloud unknown error", slog.String("body", string(body)))
				return errors.New("vendor cloud unknown error")
			}
			log.Ctx(req.Context()).ErrorContext(req.Context(), "vendor cloud api error", slog.String("message", cr.Message))
			return fmt.Errorf("vendor cloud api error: %s", cr.Message)
		}

		if dest != nil {
			if err := json.Unmarshal(cr.Data, dest); err != nil {
				log.Ctx(req.Context()).ErrorContext(req.Context(), "failed to decode vendor cloud data", slog.Any("error", err))
				return fmt.Errorf("failed to decode vendor cloud data: %w", err)
			}
		}
		return nil
	}
	return nil
}

func (c *Cloud) deviceParams() (string, url.Values, error) {
	if c.deviceID == "" {
		return "", nil, errors.New("no deviceID configured")
	}
	params := url.Values{}
	if c.buildingID != "" {
		params.Set("buildingId", c.buildingID)
	}
	return c.deviceID, params, nil
}

// EnhancedCOPData fetches the full efficiency telemetry for the device.
func (c *Cloud) EnhancedCOPData(ctx context.Context) (types.EnhancedCOPData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLogin(ctx); err != nil {
		return types.EnhancedCOPData{}, err
	}
	deviceID, params, err := c.deviceParams()
	if err != nil {
		return types.EnhancedCOPData{}, err
	}

	req, err := c.newGetRequest(ctx, "api/v1/devices/"+url.PathEscape(deviceID)+"/cop", params)
	if err != nil {
		return types.EnhancedCOPData{}, err
	}

	var res types.EnhancedCOPData
	if err := c.doRequest(req, &res); err != nil {
		return types.EnhancedCOPData{}, fmt.Errorf("cop fetch failed: %w", err)
	}
	return res, nil
}

// DailyEnergyTotals fetches per-day consumed/produced energy.
func (c *Cloud) DailyEnergyTotals(ctx context.Context, days int) ([]types.DailyEnergyTotals, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}
	deviceID, params, err := c.deviceParams()
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 1
	}
	params.Set("days", strconv.Itoa(days))

	req, err := c.newGetRequest(ctx, "api/v1/devices/"+url.PathEscape(deviceID)+"/energy/daily", params)
	if err != nil {
		return nil, err
	}

	var res []types.DailyEnergyTotals
	if err := c.doRequest(req, &res); err != nil {
		return nil, fmt.Errorf("daily energy fetch failed: %w", err)
	}
	return res, nil
}

// SetZoneSetpoint sets the heating setpoint for the given zone.
func (c *Cloud) SetZoneSetpoint(ctx context.Context, zone int, temp float64) error {
	if zone != 1 && zone != 2 {
		return fmt.Errorf("invalid zone %d", zone)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLogin(ctx); err != nil {
		return err
	}
	deviceID, _, err := c.deviceParams()
	if err != nil {
		return err
	}

	req, err := c.newPostJSONRequest(ctx,
		"api/v1/devices/"+url.PathEscape(deviceID)+"/zones/"+strconv.Itoa(zone)+"/setpoint",
		map[string]float64{"setpoint": temp})
	if err != nil {
		return err
	}

	log.Ctx(ctx).InfoContext(ctx, "setting zone setpoint",
		slog.Int("zone", zone),
		slog.Float64("setpoint", temp),
	)
	if err := c.doRequest(req, nil); err != nil {
		return fmt.Errorf("zone setpoint failed: %w", err)
	}
	return nil
}

// SetTankSetpoint sets the hot water tank setpoint.
func (c *Cloud) SetTankSetpoint(ctx context.Context, temp float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLogin(ctx); err != nil {
		return err
	}
	deviceID, _, err := c.deviceParams()
	if err != nil {
		return err
	}

	req, err := c.newPostJSONRequest(ctx,
		"api/v1/devices/"+url.PathEscape(deviceID)+"/tank/setpoint",
		map[string]float64{"setpoint": temp})
	if err != nil {
		return err
	}

	log.Ctx(ctx).InfoContext(ctx, "setting tank setpoint", slog.Float64("setpoint", temp))
	if err := c.doRequest(req, nil); err != nil {
		return fmt.Errorf("tank setpoint failed: %w", err)
	}
	return nil
}

type temperaturesResult struct {
	FlowTemp    float64 `json:"flowTemp"`
	OutdoorTemp float64 `json:"outdoorTemp"`
}

// Temperatures returns the current flow and outdoor temperatures.
func (c *Cloud) Temperatures(ctx context.Context) (float64, float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLogin(ctx); err != nil {
		return 0, 0, err
	}
	deviceID, params, err := c.deviceParams()
	if err != nil {
		return 0, 0, err
	}

	req, err := c.newGetRequest(ctx, "api/v1/devices/"+url.PathEscape(deviceID)+"/temperatures", params)
	if err != nil {
		return 0, 0, err
	}

	var res temperaturesResult
	if err := c.doRequest(req, &res); err != nil {
		return 0, 0, fmt.Errorf("temperatures fetch failed: %w", err)
	}
	return res.FlowTemp, res.OutdoorTemp, nil
}
