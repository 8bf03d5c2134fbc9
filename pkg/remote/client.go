package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cuemby/drover/pkg/errdefs"
	"github.com/cuemby/drover/pkg/storage"
	"github.com/cuemby/drover/pkg/types"
)

// Client implements VolumeService over the peer daemons' HTTP API.
type Client struct {
	store  storage.Store
	client *http.Client
}

// NewClient creates a peer client that resolves daemon addresses
// through the service registry in store.
func NewClient(store storage.Store) *Client {
	return &Client{
		store:  store,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// resolve returns the API base URL of the daemon owning the volume.
func (c *Client) resolve(volume *types.VolumeRecord) (string, error) {
	service, err := c.store.GetServiceByHost(volume.Host)
	if err != nil {
		return "", fmt.Errorf("failed to resolve service for host %s: %w", volume.Host, err)
	}
	return "http://" + service.Address + "/v1", nil
}

func (c *Client) post(ctx context.Context, baseURL, path string, in interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("peer request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("POST %s: %w", path, errdefs.ErrNotFound)
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("peer returned %d: %s", resp.StatusCode, string(data))
	}
	return nil
}

type createRequest struct {
	VolumeID        string `json:"volume_id"`
	AllowReschedule bool   `json:"allow_reschedule"`
}

type removeExportRequest struct {
	Sync bool `json:"sync"`
}

type terminateRequest struct {
	Connector *types.Connector `json:"connector,omitempty"`
}

func (c *Client) CreateVolume(ctx context.Context, volume *types.VolumeRecord, allowReschedule bool) error {
	baseURL, err := c.resolve(volume)
	if err != nil {
		return err
	}
	return c.post(ctx, baseURL, "/volumes/"+url.PathEscape(volume.ID)+"/provision",
		createRequest{VolumeID: volume.ID, AllowReschedule: allowReschedule})
}

func (c *Client) DeleteVolume(ctx context.Context, volume *types.VolumeRecord) error {
	baseURL, err := c.resolve(volume)
	if err != nil {
		return err
	}
	return c.post(ctx, baseURL, "/volumes/"+url.PathEscape(volume.ID)+"/delete", nil)
}

func (c *Client) RemoveExport(ctx context.Context, volume *types.VolumeRecord, sync bool) error {
	baseURL, err := c.resolve(volume)
	if err != nil {
		return err
	}
	return c.post(ctx, baseURL, "/volumes/"+url.PathEscape(volume.ID)+"/remove-export",
		removeExportRequest{Sync: sync})
}

func (c *Client) TerminateConnection(ctx context.Context, volume *types.VolumeRecord, connector *types.Connector) error {
	baseURL, err := c.resolve(volume)
	if err != nil {
		return err
	}
	return c.post(ctx, baseURL, "/volumes/"+url.PathEscape(volume.ID)+"/terminate",
		terminateRequest{Connector: connector})
}
