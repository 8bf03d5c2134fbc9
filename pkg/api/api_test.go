package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/drover/pkg/driver"
	"github.com/cuemby/drover/pkg/errdefs"
	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/storage"
	"github.com/cuemby/drover/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	m.Run()
}

type fakeStore struct {
	volumes  map[string]types.VolumeRecord
	services map[string]types.Service
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		volumes:  make(map[string]types.VolumeRecord),
		services: make(map[string]types.Service),
	}
}

func (s *fakeStore) CreateVolume(v *types.VolumeRecord) error {
	s.volumes[v.ID] = *v
	return nil
}

func (s *fakeStore) GetVolume(id string) (*types.VolumeRecord, error) {
	v, ok := s.volumes[id]
	if !ok {
		return nil, fmt.Errorf("volume %s: %w", id, errdefs.ErrNotFound)
	}
	return &v, nil
}

func (s *fakeStore) ListVolumes() ([]*types.VolumeRecord, error) {
	var out []*types.VolumeRecord
	for id := range s.volumes {
		v := s.volumes[id]
		out = append(out, &v)
	}
	return out, nil
}

func (s *fakeStore) ListVolumesByHost(host string) ([]*types.VolumeRecord, error) {
	var out []*types.VolumeRecord
	for id := range s.volumes {
		if s.volumes[id].Host == host {
			v := s.volumes[id]
			out = append(out, &v)
		}
	}
	return out, nil
}

func (s *fakeStore) GetVolumeByMigrationTarget(id string) (*types.VolumeRecord, error) {
	for vid := range s.volumes {
		if s.volumes[vid].MigrationStatus.TargetID() == id {
			v := s.volumes[vid]
			return &v, nil
		}
	}
	return nil, fmt.Errorf("migration source for %s: %w", id, errdefs.ErrNotFound)
}

func (s *fakeStore) UpdateVolume(v *types.VolumeRecord) error {
	if _, ok := s.volumes[v.ID]; !ok {
		return fmt.Errorf("volume %s: %w", v.ID, errdefs.ErrNotFound)
	}
	s.volumes[v.ID] = *v
	return nil
}

func (s *fakeStore) DeleteVolume(id string) error {
	if _, ok := s.volumes[id]; !ok {
		return fmt.Errorf("volume %s: %w", id, errdefs.ErrNotFound)
	}
	delete(s.volumes, id)
	return nil
}

func (s *fakeStore) UpsertService(svc *types.Service) error {
	s.services[svc.Host] = *svc
	return nil
}

func (s *fakeStore) GetServiceByHost(host string) (*types.Service, error) {
	svc, ok := s.services[host]
	if !ok {
		return nil, fmt.Errorf("service %s: %w", host, errdefs.ErrNotFound)
	}
	return &svc, nil
}

func (s *fakeStore) ListServices() ([]*types.Service, error) {
	var out []*types.Service
	for host := range s.services {
		svc := s.services[host]
		out = append(out, &svc)
	}
	return out, nil
}

func (s *fakeStore) Close() error { return nil }

type fakeDriver struct {
	createErr    error
	created      []string
	deleted      []string
	terminated   []string
	initialized  []string
	terminateErr error
}

func (f *fakeDriver) BackendHost() (string, bool) { return "hosta@lvm", true }

func (f *fakeDriver) CreateVolume(ctx context.Context, v *types.VolumeRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, v.ID)
	return nil
}

func (f *fakeDriver) DeleteVolume(ctx context.Context, v *types.VolumeRecord) error {
	f.deleted = append(f.deleted, v.ID)
	return nil
}

func (f *fakeDriver) ExtendVolume(ctx context.Context, v *types.VolumeRecord, sizeGiB uint64) error {
	return nil
}

func (f *fakeDriver) RemoveExport(ctx context.Context, v *types.VolumeRecord) error {
	return nil
}

func (f *fakeDriver) InitializeConnection(ctx context.Context, v *types.VolumeRecord, conn *types.Connector) (*types.ConnectionInfo, error) {
	f.initialized = append(f.initialized, v.ID)
	return &types.ConnectionInfo{
		DriverVolumeType: "local",
		Data:             types.ConnectionData{DevicePath: "/dev/mapper/volume-" + v.NameID + "-handle"},
	}, nil
}

func (f *fakeDriver) TerminateConnection(ctx context.Context, v *types.VolumeRecord, conn *types.Connector) error {
	if f.terminateErr != nil {
		return f.terminateErr
	}
	f.terminated = append(f.terminated, v.ID)
	return nil
}

func (f *fakeDriver) GetStats() driver.Stats {
	return driver.Stats{BackendName: "lvm", DriverVersion: driver.Version, Protocol: "iSCSI"}
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeStore, *fakeDriver) {
	t.Helper()
	store := newFakeStore()
	drv := &fakeDriver{}
	srv := httptest.NewServer(New(":0", store, drv).Handler())
	t.Cleanup(srv.Close)
	return srv, store, drv
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// The registry endpoints and the RemoteStore client are two halves of
// one protocol, so they are tested against each other.
func TestRegistryRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t)
	remote := storage.NewRemoteStore(strings.TrimPrefix(srv.URL, "http://"))

	volume := &types.VolumeRecord{
		ID:      "vol-1",
		NameID:  "vol-1",
		Host:    "hosta@lvm",
		Status:  types.VolumeStatusCreating,
		SizeGiB: 1,
	}
	require.NoError(t, remote.CreateVolume(volume))

	got, err := remote.GetVolume("vol-1")
	require.NoError(t, err)
	assert.Equal(t, "hosta@lvm", got.Host)

	got.Status = types.VolumeStatusAvailable
	got.MigrationStatus = types.MigrationTarget("dst-1")
	require.NoError(t, remote.UpdateVolume(got))

	byHost, err := remote.ListVolumesByHost("hosta@lvm")
	require.NoError(t, err)
	require.Len(t, byHost, 1)
	assert.Equal(t, types.VolumeStatusAvailable, byHost[0].Status)

	src, err := remote.GetVolumeByMigrationTarget("dst-1")
	require.NoError(t, err)
	assert.Equal(t, "vol-1", src.ID)

	_, err = remote.GetVolumeByMigrationTarget("unknown")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	require.NoError(t, remote.DeleteVolume("vol-1"))
	_, err = remote.GetVolume("vol-1")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestRegistryServices(t *testing.T) {
	srv, _, _ := newTestServer(t)
	remote := storage.NewRemoteStore(strings.TrimPrefix(srv.URL, "http://"))

	require.NoError(t, remote.UpsertService(&types.Service{
		Host:    "hostb@lvm",
		Backend: "lvm",
		Address: "hostb:8470",
	}))

	svc, err := remote.GetServiceByHost("hostb@lvm")
	require.NoError(t, err)
	assert.Equal(t, "hostb:8470", svc.Address)

	services, err := remote.ListServices()
	require.NoError(t, err)
	assert.Len(t, services, 1)

	_, err = remote.GetServiceByHost("nope@lvm")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestProvisionIsAsynchronous(t *testing.T) {
	srv, store, drv := newTestServer(t)
	require.NoError(t, store.CreateVolume(&types.VolumeRecord{
		ID:     "vol-1",
		NameID: "vol-1",
		Host:   "hostb@lvm",
		Status: types.VolumeStatusCreating,
	}))

	resp := postJSON(t, srv.URL+"/v1/volumes/vol-1/provision",
		provisionRequest{VolumeID: "vol-1"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		v, err := store.GetVolume("vol-1")
		return err == nil && v.Status == types.VolumeStatusAvailable
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"vol-1"}, drv.created)
}

func TestProvisionUnknownVolume(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/volumes/nope/provision", provisionRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateVolume(t *testing.T) {
	srv, store, drv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/volumes", createVolumeRequest{SizeGiB: 2})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var volume types.VolumeRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&volume))
	assert.Equal(t, "hosta@lvm", volume.Host)
	assert.Equal(t, types.VolumeStatusAvailable, volume.Status)
	assert.True(t, volume.UseQuota)
	assert.Len(t, drv.created, 1)

	stored, err := store.GetVolume(volume.ID)
	require.NoError(t, err)
	assert.Equal(t, types.VolumeStatusAvailable, stored.Status)
}

func TestPeerDeleteKeepsRecord(t *testing.T) {
	srv, store, drv := newTestServer(t)
	require.NoError(t, store.CreateVolume(&types.VolumeRecord{ID: "vol-1", NameID: "vol-1"}))

	resp := postJSON(t, srv.URL+"/v1/volumes/vol-1/delete", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Equal(t, []string{"vol-1"}, drv.deleted)
	_, err := store.GetVolume("vol-1")
	assert.NoError(t, err, "record ownership stays with the coordinator")
}

func TestAdminDeleteDestroysRecord(t *testing.T) {
	srv, store, drv := newTestServer(t)
	require.NoError(t, store.CreateVolume(&types.VolumeRecord{ID: "vol-1", NameID: "vol-1"}))

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/volumes/vol-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Equal(t, []string{"vol-1"}, drv.deleted)
	_, err = store.GetVolume("vol-1")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestTerminateConnectionMapsValidationErrors(t *testing.T) {
	srv, store, drv := newTestServer(t)
	require.NoError(t, store.CreateVolume(&types.VolumeRecord{ID: "vol-1", NameID: "vol-1"}))
	drv.terminateErr = fmt.Errorf("connector required: %w", errdefs.ErrInvalidConnector)

	resp := postJSON(t, srv.URL+"/v1/volumes/vol-1/terminate", terminateRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInitializeConnection(t *testing.T) {
	srv, store, _ := newTestServer(t)
	require.NoError(t, store.CreateVolume(&types.VolumeRecord{ID: "vol-1", NameID: "vol-1"}))

	resp := postJSON(t, srv.URL+"/v1/volumes/vol-1/initialize", types.Connector{Host: "hosta"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info types.ConnectionInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "local", info.DriverVolumeType)
	assert.Equal(t, "/dev/mapper/volume-vol-1-handle", info.Data.DevicePath)
}

func TestExtendVolumeRejectsShrink(t *testing.T) {
	srv, store, _ := newTestServer(t)
	require.NoError(t, store.CreateVolume(&types.VolumeRecord{ID: "vol-1", NameID: "vol-1", SizeGiB: 4}))

	resp := postJSON(t, srv.URL+"/v1/volumes/vol-1/extend", extendVolumeRequest{SizeGiB: 2})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStats(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats driver.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, driver.Version, stats.DriverVersion)
}
