package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/licitahub/licitahub/pkg/persistence"
	"github.com/licitahub/licitahub/pkg/providers"
	"github.com/licitahub/licitahub/pkg/rag"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleUnifiedSearch fans the query out to every provider and returns the
// combined, sorted list.
func (s *Server) handleUnifiedSearch(c *gin.Context) {
	filters, err := parseFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opps, err := s.deps.Search.SearchCombined(c.Request.Context(), filters)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(opps), "results": opps})
}

// handleProviderSearch queries a single provider.
func (s *Server) handleProviderSearch(c *gin.Context) {
	filters, err := parseFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	provider := c.Param("provider")
	opps, err := s.deps.Search.SearchOne(c.Request.Context(), provider, filters)
	if err != nil {
		var unknown *providers.ErrUnknownProvider
		if errors.As(err, &unknown) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": provider, "count": len(opps), "results": opps})
}

func (s *Server) handleProviderStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Search.ProviderStats())
}

// handleStoredSearch lists persisted opportunities.
func (s *Server) handleStoredSearch(c *gin.Context) {
	query := persistence.SearchQuery{
		Provider:   c.Query("provider"),
		Status:     c.Query("status"),
		RegionCode: c.Query("region_code"),
		Category:   c.Query("category"),
	}
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	query.Offset, _ = strconv.Atoi(c.Query("offset"))

	stored, err := s.deps.Store.Search(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(stored), "results": stored})
}

func (s *Server) handleStoredStats(c *gin.Context) {
	stats, err := s.deps.Store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleGetItems returns the line items of one opportunity. Stored items are
// served when present; ?refresh=1 forces a fetch from the provider, which
// also refreshes the stored copy.
func (s *Server) handleGetItems(c *gin.Context) {
	provider := c.Param("provider")
	externalID := c.Param("external_id")
	refresh := c.Query("refresh") == "1"

	ctx := c.Request.Context()
	stored, err := s.deps.Store.GetStored(ctx, provider, externalID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if !refresh && stored != nil {
		items, err := s.deps.Store.GetItems(ctx, stored.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(items) > 0 {
			c.JSON(http.StatusOK, gin.H{"source": "store", "count": len(items), "items": items})
			return
		}
	}

	adapter, err := s.deps.Registry.Get(provider)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	items, err := adapter.GetItems(ctx, externalID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	if stored != nil && len(items) > 0 {
		if err := s.deps.Store.SaveItems(ctx, stored.ID, items); err != nil {
			s.logger.Warn("failed to store refreshed items", map[string]interface{}{
				"opportunity": stored.ID, "error": err.Error(),
			})
		}
	}
	c.JSON(http.StatusOK, gin.H{"source": "provider", "count": len(items), "items": items})
}

// matchingRequest is the body of POST /matching/run.
type matchingRequest struct {
	Mode       string `json:"mode"`
	WindowDays int    `json:"window_days"`
	From       string `json:"from"`
	To         string `json:"to"`
}

func (s *Server) handleRunMatching(c *gin.Context) {
	if s.deps.Matcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "matching is not configured"})
		return
	}

	// An absent or malformed body means an incremental run with defaults.
	var req matchingRequest
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	switch req.Mode {
	case "", "incremental":
		report, err := s.deps.Matcher.RunIncremental(ctx, req.WindowDays)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	case "full":
		from, err := parseOptionalDate(req.From)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date: " + req.From})
			return
		}
		to, err := parseOptionalDate(req.To)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date: " + req.To})
			return
		}
		report, err := s.deps.Matcher.RunFull(ctx, from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be incremental or full"})
	}
}

// ragRequest is the body of POST /rag/query.
type ragRequest struct {
	OpportunityID int64  `json:"opportunity_id" binding:"required"`
	Query         string `json:"query" binding:"required"`
}

func (s *Server) handleRAGQuery(c *gin.Context) {
	if s.deps.RAG == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "rag is not configured"})
		return
	}

	var req ragRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.deps.RAG.Answer(c.Request.Context(), req.OpportunityID, req.Query)
	if err != nil {
		var answerErr *rag.AnswerError
		if errors.As(err, &answerErr) {
			c.JSON(statusOfAction(answerErr.Action), gin.H{
				"error":  answerErr.Message,
				"action": answerErr.Action,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleVectorizationStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("opportunity_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "opportunity_id must be numeric"})
		return
	}

	status, err := s.deps.Vectors.VectorizationStatus(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// handleCachePurge deletes every cache key under a prefix. Maintenance
// endpoint; the prefix is mandatory so a stray call cannot flush everything.
func (s *Server) handleCachePurge(c *gin.Context) {
	if s.deps.Cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache is not configured"})
		return
	}
	prefix := c.Query("prefix")
	if prefix == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prefix is required"})
		return
	}

	ctx := c.Request.Context()
	keys, err := s.deps.Cache.Scan(ctx, prefix)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	deleted := 0
	for _, key := range keys {
		if err := s.deps.Cache.Delete(ctx, key); err != nil {
			s.logger.Warn("cache purge delete failed", map[string]interface{}{
				"key": key, "error": err.Error(),
			})
			continue
		}
		deleted++
	}
	c.JSON(http.StatusOK, gin.H{"prefix": prefix, "deleted": deleted})
}

// statusOfAction maps structured answer failures onto HTTP statuses.
func statusOfAction(action string) int {
	switch action {
	case rag.ActionDocumentsNotFound:
		return http.StatusNotFound
	case rag.ActionExtractionFailed:
		return http.StatusUnprocessableEntity
	case rag.ActionAPIError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseFilters binds the cross-provider filter set from query parameters.
func parseFilters(c *gin.Context) (providers.Filters, error) {
	var filters providers.Filters
	if err := c.ShouldBindQuery(&filters); err != nil {
		return filters, err
	}

	var err error
	if filters.PublicationDateFrom, err = parseOptionalDate(c.Query("publication_date_from")); err != nil {
		return filters, err
	}
	if filters.PublicationDateTo, err = parseOptionalDate(c.Query("publication_date_to")); err != nil {
		return filters, err
	}
	if filters.SubmissionDeadlineFrom, err = parseOptionalDate(c.Query("submission_deadline_from")); err != nil {
		return filters, err
	}
	if filters.SubmissionDeadlineTo, err = parseOptionalDate(c.Query("submission_deadline_to")); err != nil {
		return filters, err
	}
	return filters, nil
}

// parseOptionalDate accepts RFC 3339 or plain dates; empty means unset.
func parseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("invalid date: " + s)
}
