package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	registrydomain "github.com/fabworks/cbbstore/internal/registry/domain"
)

func (s *Server) ResolveCBB(c *gin.Context) {
	var req registrydomain.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, registrydomain.ErrInvalidRequirement)
		return
	}

	results, err := s.registrySvc.Resolve(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) SearchCBBs(c *gin.Context) {
	req := registrydomain.SearchRequest{
		Query:      strings.TrimSpace(c.Query("q")),
		Tags:       splitCSV(c.Query("tags")),
		Simulators: splitCSV(c.Query("simulators")),
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, registrydomain.ErrInvalidRequirement)
			return
		}
		req.Limit = limit
	}

	candidates, err := s.registrySvc.Search(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

func (s *Server) GetPopularCBBs(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, registrydomain.ErrInvalidRequirement)
			return
		}
		limit = parsed
	}

	candidates, err := s.registrySvc.GetPopular(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
