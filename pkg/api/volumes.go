package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/cuemby/drover/pkg/errdefs"
	"github.com/cuemby/drover/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type provisionRequest struct {
	VolumeID        string `json:"volume_id"`
	AllowReschedule bool   `json:"allow_reschedule"`
}

type removeExportRequest struct {
	Sync bool `json:"sync"`
}

type terminateRequest struct {
	Connector *types.Connector `json:"connector,omitempty"`
}

type createVolumeRequest struct {
	SizeGiB   uint64 `json:"size_gib" binding:"required"`
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Desc      string `json:"description"`
}

type extendVolumeRequest struct {
	SizeGiB uint64 `json:"size_gib" binding:"required"`
}

// provisionVolume builds the backing storage for an already persisted
// record. Provisioning can involve connecting to a remote source and is
// slow, so the request is acknowledged immediately and the work runs in
// the background; the caller polls the record's status.
func (s *Server) provisionVolume(c *gin.Context) {
	volume, err := s.store.GetVolume(c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	var req provisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	go s.provision(volume)
	c.JSON(http.StatusAccepted, gin.H{"status": "provisioning", "volume_id": volume.ID})
}

func (s *Server) provision(volume *types.VolumeRecord) {
	ctx := context.Background()
	if err := s.driver.CreateVolume(ctx, volume); err != nil {
		s.logger.Error().Err(err).Str("volume_id", volume.ID).
			Msg("failed to provision volume")
		// Migration overlay failures are persisted by the driver; plain
		// creation failures are recorded here.
		volume.Status = types.VolumeStatusError
		if uerr := s.store.UpdateVolume(volume); uerr != nil {
			s.logger.Error().Err(uerr).Str("volume_id", volume.ID).
				Msg("failed to persist error state")
		}
		return
	}

	volume.Status = types.VolumeStatusAvailable
	if err := s.store.UpdateVolume(volume); err != nil {
		s.logger.Error().Err(err).Str("volume_id", volume.ID).
			Msg("failed to mark volume available")
	}
}

// createVolume creates a brand-new volume on this daemon's backend.
func (s *Server) createVolume(c *gin.Context) {
	host, ok := s.driver.BackendHost()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service not registered yet"})
		return
	}
	var req createVolumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := uuid.NewString()
	volume := &types.VolumeRecord{
		ID:           id,
		NameID:       id,
		Host:         host,
		Status:       types.VolumeStatusCreating,
		AttachStatus: types.AttachStatusDetached,
		SizeGiB:      req.SizeGiB,
		ProjectID:    req.ProjectID,
		UserID:       req.UserID,
		UseQuota:     true,
		Description:  req.Desc,
	}
	if err := s.store.CreateVolume(volume); err != nil {
		s.storeError(c, err)
		return
	}

	if err := s.driver.CreateVolume(c.Request.Context(), volume); err != nil {
		s.logger.Error().Err(err).Str("volume_id", volume.ID).Msg("failed to create volume")
		volume.Status = types.VolumeStatusError
		if uerr := s.store.UpdateVolume(volume); uerr != nil {
			s.logger.Error().Err(uerr).Str("volume_id", volume.ID).
				Msg("failed to persist error state")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	volume.Status = types.VolumeStatusAvailable
	if err := s.store.UpdateVolume(volume); err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, volume)
}

func (s *Server) listVolumes(c *gin.Context) {
	s.storeListVolumes(c)
}

func (s *Server) getVolume(c *gin.Context) {
	s.storeGetVolume(c)
}

// deleteVolume tears down backing storage. The admin DELETE form also
// destroys the record; the peer POST form leaves record ownership to
// the calling coordinator.
func (s *Server) deleteVolume(c *gin.Context) {
	volume, err := s.store.GetVolume(c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	if err := s.driver.DeleteVolume(c.Request.Context(), volume); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if c.Request.Method == http.MethodDelete {
		if err := s.store.DeleteVolume(volume.ID); err != nil && !errdefs.IsNotFound(err) {
			s.storeError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) removeExport(c *gin.Context) {
	volume, err := s.store.GetVolume(c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	var req removeExportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := s.driver.RemoveExport(c.Request.Context(), volume); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) initializeConnection(c *gin.Context) {
	volume, err := s.store.GetVolume(c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	var conn types.Connector
	if err := c.ShouldBindJSON(&conn); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := s.driver.InitializeConnection(c.Request.Context(), volume, &conn)
	if err != nil {
		s.driverError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) terminateConnection(c *gin.Context) {
	volume, err := s.store.GetVolume(c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	var req terminateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := s.driver.TerminateConnection(c.Request.Context(), volume, req.Connector); err != nil {
		s.driverError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) extendVolume(c *gin.Context) {
	volume, err := s.store.GetVolume(c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	var req extendVolumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SizeGiB <= volume.SizeGiB {
		c.JSON(http.StatusBadRequest, gin.H{"error": "new size must be larger than current size"})
		return
	}

	if err := s.driver.ExtendVolume(c.Request.Context(), volume, req.SizeGiB); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	volume.SizeGiB = req.SizeGiB
	if err := s.store.UpdateVolume(volume); err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, volume)
}

func (s *Server) driverError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errdefs.ErrInvalidConnector), errors.Is(err, errdefs.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errdefs.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("driver request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
