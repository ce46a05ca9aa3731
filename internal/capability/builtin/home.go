package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/normanking/archon/internal/capability"
)

// HomeClient controls smart-home devices through a local bridge's REST API.
type HomeClient struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewHomeClient creates a client for the bridge at baseURL.
func NewHomeClient(baseURL, token string) *HomeClient {
	return &HomeClient{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		token:   token,
	}
}

// Descriptors returns the registry entries for device control and state
// lookup. Both carry the "home" domain so lightweight UI formats keep them.
func (h *HomeClient) Descriptors() []*capability.Descriptor {
	return []*capability.Descriptor{
		{
			Name:        "set_device",
			Description: "Switch a smart-home device on or off, or set its level.",
			Domain:      "home",
			Params: []capability.Param{
				{Name: "device", Type: "string", Description: "Device identifier, e.g. light.kitchen", Required: true},
				{Name: "state", Type: "string", Description: "Target state", Required: true, Enum: []string{"on", "off"}},
				{Name: "level", Type: "string", Description: "Brightness or level 0-100, optional"},
			},
			Invoke: h.setDevice,
		},
		{
			Name:        "get_device_state",
			Description: "Read the current state of a smart-home device.",
			Domain:      "home",
			Params: []capability.Param{
				{Name: "device", Type: "string", Description: "Device identifier", Required: true},
			},
			Invoke: h.getDeviceState,
		},
	}
}

type deviceState struct {
	Device string `json:"device"`
	State  string `json:"state"`
	Level  int    `json:"level,omitempty"`
}

func (h *HomeClient) setDevice(ctx context.Context, args map[string]string) (any, error) {
	device := args["device"]
	state := args["state"]
	if device == "" || state == "" {
		return nil, fmt.Errorf("device and state are required")
	}

	body, err := json.Marshal(map[string]string{
		"state": state,
		"level": args["level"],
	})
	if err != nil {
		return nil, err
	}

	var result deviceState
	if err := h.do(ctx, "POST", "/api/devices/"+device+"/state", body, &result); err != nil {
		return nil, fmt.Errorf("set %s: %w", device, err)
	}
	return result, nil
}

func (h *HomeClient) getDeviceState(ctx context.Context, args map[string]string) (any, error) {
	device := args["device"]
	if device == "" {
		return nil, fmt.Errorf("device is required")
	}

	var result deviceState
	if err := h.do(ctx, "GET", "/api/devices/"+device+"/state", nil, &result); err != nil {
		return nil, fmt.Errorf("read %s: %w", device, err)
	}
	return result, nil
}

func (h *HomeClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
