package api

import (
	"net/http"

	"github.com/cuemby/drover/pkg/errdefs"
	"github.com/cuemby/drover/pkg/types"
	"github.com/gin-gonic/gin"
)

// Registry handlers back the RemoteStore client on peer daemons. They
// are thin: all semantics live in the store itself.

func (s *Server) storeCreateVolume(c *gin.Context) {
	var volume types.VolumeRecord
	if err := c.ShouldBindJSON(&volume); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.CreateVolume(&volume); err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, &volume)
}

func (s *Server) storeListVolumes(c *gin.Context) {
	if target := c.Query("migration_target"); target != "" {
		volume, err := s.store.GetVolumeByMigrationTarget(target)
		if err != nil {
			if errdefs.IsNotFound(err) {
				c.JSON(http.StatusOK, []*types.VolumeRecord{})
				return
			}
			s.storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, []*types.VolumeRecord{volume})
		return
	}

	var (
		volumes []*types.VolumeRecord
		err     error
	)
	if host := c.Query("host"); host != "" {
		volumes, err = s.store.ListVolumesByHost(host)
	} else {
		volumes, err = s.store.ListVolumes()
	}
	if err != nil {
		s.storeError(c, err)
		return
	}
	if volumes == nil {
		volumes = []*types.VolumeRecord{}
	}
	c.JSON(http.StatusOK, volumes)
}

func (s *Server) storeGetVolume(c *gin.Context) {
	volume, err := s.store.GetVolume(c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, volume)
}

func (s *Server) storeUpdateVolume(c *gin.Context) {
	var volume types.VolumeRecord
	if err := c.ShouldBindJSON(&volume); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	volume.ID = c.Param("id")
	if err := s.store.UpdateVolume(&volume); err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, &volume)
}

func (s *Server) storeDeleteVolume(c *gin.Context) {
	if err := s.store.DeleteVolume(c.Param("id")); err != nil {
		s.storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) storeUpsertService(c *gin.Context) {
	var service types.Service
	if err := c.ShouldBindJSON(&service); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	service.Host = c.Param("host")
	if err := s.store.UpsertService(&service); err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, &service)
}

func (s *Server) storeListServices(c *gin.Context) {
	services, err := s.store.ListServices()
	if err != nil {
		s.storeError(c, err)
		return
	}
	if services == nil {
		services = []*types.Service{}
	}
	c.JSON(http.StatusOK, services)
}

func (s *Server) storeGetServiceByHost(c *gin.Context) {
	service, err := s.store.GetServiceByHost(c.Param("host"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, service)
}

func (s *Server) storeError(c *gin.Context, err error) {
	if errdefs.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("store request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
