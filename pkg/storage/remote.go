package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cuemby/drover/pkg/errdefs"
	"github.com/cuemby/drover/pkg/types"
)

// RemoteStore implements Store against the registry daemon's HTTP API.
// Hosts that do not own the cluster metadata store use this client, so
// every daemon sees one consistent set of records.
type RemoteStore struct {
	baseURL string
	client  *http.Client
}

// NewRemoteStore creates a store client for the registry at addr (host:port).
func NewRemoteStore(addr string) *RemoteStore {
	return &RemoteStore{
		baseURL: "http://" + addr + "/v1/store",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *RemoteStore) do(method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, errdefs.ErrNotFound)
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("registry returned %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (s *RemoteStore) CreateVolume(volume *types.VolumeRecord) error {
	return s.do(http.MethodPost, "/volumes", volume, volume)
}

func (s *RemoteStore) GetVolume(id string) (*types.VolumeRecord, error) {
	var volume types.VolumeRecord
	if err := s.do(http.MethodGet, "/volumes/"+url.PathEscape(id), nil, &volume); err != nil {
		return nil, err
	}
	return &volume, nil
}

func (s *RemoteStore) ListVolumes() ([]*types.VolumeRecord, error) {
	var volumes []*types.VolumeRecord
	if err := s.do(http.MethodGet, "/volumes", nil, &volumes); err != nil {
		return nil, err
	}
	return volumes, nil
}

func (s *RemoteStore) ListVolumesByHost(host string) ([]*types.VolumeRecord, error) {
	var volumes []*types.VolumeRecord
	path := "/volumes?host=" + url.QueryEscape(host)
	if err := s.do(http.MethodGet, path, nil, &volumes); err != nil {
		return nil, err
	}
	return volumes, nil
}

func (s *RemoteStore) GetVolumeByMigrationTarget(id string) (*types.VolumeRecord, error) {
	var volumes []*types.VolumeRecord
	path := "/volumes?migration_target=" + url.QueryEscape(id)
	if err := s.do(http.MethodGet, path, nil, &volumes); err != nil {
		return nil, err
	}
	if len(volumes) == 0 {
		return nil, fmt.Errorf("volume with migration target %s: %w", id, errdefs.ErrNotFound)
	}
	return volumes[0], nil
}

func (s *RemoteStore) UpdateVolume(volume *types.VolumeRecord) error {
	return s.do(http.MethodPut, "/volumes/"+url.PathEscape(volume.ID), volume, volume)
}

func (s *RemoteStore) DeleteVolume(id string) error {
	return s.do(http.MethodDelete, "/volumes/"+url.PathEscape(id), nil, nil)
}

func (s *RemoteStore) UpsertService(service *types.Service) error {
	return s.do(http.MethodPut, "/services/"+url.PathEscape(service.Host), service, service)
}

func (s *RemoteStore) GetServiceByHost(host string) (*types.Service, error) {
	var service types.Service
	if err := s.do(http.MethodGet, "/services/"+url.PathEscape(host), nil, &service); err != nil {
		return nil, err
	}
	return &service, nil
}

func (s *RemoteStore) ListServices() ([]*types.Service, error) {
	var services []*types.Service
	if err := s.do(http.MethodGet, "/services", nil, &services); err != nil {
		return nil, err
	}
	return services, nil
}

// Close is a no-op for the HTTP-backed store.
func (s *RemoteStore) Close() error {
	return nil
}
