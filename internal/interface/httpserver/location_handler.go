package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleLocation は呼び出し元の国コードを返す
func (s *Server) handleLocation(c *gin.Context) {
	country, err := s.container.Location.Country(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"country": country})
}
