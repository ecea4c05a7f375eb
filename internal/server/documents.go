package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"podmill/internal/cache"
	"podmill/internal/docstore"
)

// getDocument returns one saved workflow document. Lookups go through the
// response cache when one is wired, so repeated fetches of the same
// document skip the document store entirely.
func (s *Server) getDocument(c *gin.Context) {
	ident, _ := identityFrom(c)
	id := c.Param("id")
	ctx := c.Request.Context()
	key := "document:" + id

	var doc docstore.Document
	if s.cache == nil || !s.cache.Get(ctx, cache.TypeAPIResponses, key, &doc) {
		loaded, err := s.documents.Get(ctx, id)
		if err != nil {
			failErr(c, s.logger, err)
			return
		}
		doc = loaded
		if s.cache != nil {
			s.cache.Set(ctx, cache.TypeAPIResponses, key, doc)
		}
	}

	if doc.UserID != ident.UserID {
		fail(c, http.StatusForbidden, codeForbidden, "document belongs to another user")
		return
	}
	c.JSON(http.StatusOK, doc)
}
