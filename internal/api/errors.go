package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/VariantEffect/mavedb-core/internal/domain"
	"github.com/VariantEffect/mavedb-core/internal/service"
)

// writeError maps domain errors onto HTTP responses. Validation failures
// carry their per-row detail; hidden permission denials masquerade as 404.
func writeError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"detail": verr.Message,
			"errors": verr.Detail,
		})
		return
	}

	var perr *service.PermissionError
	if errors.As(err, &perr) {
		if perr.Hidden {
			c.JSON(http.StatusNotFound, gin.H{"detail": perr.Message})
			return
		}
		c.JSON(http.StatusForbidden, gin.H{"detail": perr.Message})
		return
	}

	var ambiguous *domain.AmbiguousIdentifierError
	if errors.As(err, &ambiguous) {
		c.JSON(http.StatusBadRequest, gin.H{
			"detail":   ambiguous.Error(),
			"db_names": ambiguous.DBNames,
		})
		return
	}

	var nonexistent *domain.NonexistentIdentifierError
	if errors.As(err, &nonexistent) {
		c.JSON(http.StatusNotFound, gin.H{"detail": nonexistent.Error()})
		return
	}

	var orcid *domain.NonexistentOrcidUserError
	if errors.As(err, &orcid) {
		c.JSON(http.StatusNotFound, gin.H{"detail": orcid.Error()})
		return
	}

	var mixed *domain.MixedTargetError
	if errors.As(err, &mixed) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": mixed.Error()})
		return
	}

	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
		return
	}
	if errors.Is(err, domain.ErrAlreadyExists) {
		c.JSON(http.StatusConflict, gin.H{"detail": err.Error()})
		return
	}

	var transient *domain.TransientExternalError
	if errors.As(err, &transient) {
		c.JSON(http.StatusBadGateway, gin.H{"detail": transient.Error()})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
}
