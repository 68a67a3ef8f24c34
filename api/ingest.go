package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/creator-pulse/models"
)

// Ingestor is the write side used by the ingestion endpoints
type Ingestor interface {
	SaveCreator(ctx context.Context, creator models.Creator) error
	SavePost(ctx context.Context, post models.PostRecord) error
	SaveSnapshot(ctx context.Context, snap models.DailySnapshot) error
	SaveAccountInsight(ctx context.Context, insight models.AccountInsight) error
}

// PostRequest is the payload for publishing or refreshing a post
type PostRequest struct {
	ID          string           `json:"id"`
	CreatedAt   time.Time        `json:"created_at"`
	Type        string           `json:"type"`
	Format      string           `json:"format"`
	Proposal    string           `json:"proposal"`
	Context     string           `json:"context"`
	Tags        []string         `json:"tags"`
	Description string           `json:"description"`
	Stats       models.PostStats `json:"stats"`
}

func (s *Server) registerIngestRoutes(g *echo.Group) {
	if s.opts.Ingestor == nil {
		return
	}
	g.PUT("/creators/:id", s.saveCreator)
	g.PUT("/creators/:id/posts/:postID", s.savePost)
	g.PUT("/creators/:id/posts/:postID/snapshots/:day", s.saveSnapshot)
	g.POST("/creators/:id/account-insights", s.saveAccountInsight)
}

func (s *Server) saveCreator(c echo.Context) error {
	var body models.Creator
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	body.ID = c.Param("id")
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		body.Name = body.ID
	}

	if err := s.opts.Ingestor.SaveCreator(c.Request().Context(), body); err != nil {
		s.log.WithError(err).WithField("creator_id", body.ID).Error("Failed to save creator")
		return errorJSON(c, http.StatusInternalServerError, "failed to save creator")
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) savePost(c echo.Context) error {
	creator, err := s.creator(c)
	if creator == nil {
		return err
	}

	var body PostRequest
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	postType, err := models.ParseContentType(body.Type)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	if body.CreatedAt.IsZero() {
		return errorJSON(c, http.StatusBadRequest, "created_at is required")
	}

	post := models.PostRecord{
		ID:          c.Param("postID"),
		CreatorID:   creator.ID,
		CreatedAt:   body.CreatedAt.UTC(),
		Type:        postType,
		Format:      body.Format,
		Proposal:    body.Proposal,
		Context:     body.Context,
		Tags:        body.Tags,
		Description: body.Description,
		Stats:       body.Stats,
	}
	if err := s.opts.Ingestor.SavePost(c.Request().Context(), post); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"creator_id": creator.ID,
			"post_id":    post.ID,
		}).Error("Failed to save post")
		return errorJSON(c, http.StatusInternalServerError, "failed to save post")
	}
	return c.JSON(http.StatusOK, post)
}

func (s *Server) saveSnapshot(c echo.Context) error {
	creator, err := s.creator(c)
	if creator == nil {
		return err
	}

	day, err := strconv.Atoi(c.Param("day"))
	if err != nil || day < 1 {
		return errorJSON(c, http.StatusBadRequest, "day must be a positive integer")
	}

	var snap models.DailySnapshot
	if err := c.Bind(&snap); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	snap.PostID = c.Param("postID")
	snap.DayNumber = day

	if err := s.opts.Ingestor.SaveSnapshot(c.Request().Context(), snap); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"creator_id": creator.ID,
			"post_id":    snap.PostID,
			"day":        day,
		}).Error("Failed to save snapshot")
		return errorJSON(c, http.StatusInternalServerError, "failed to save snapshot")
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) saveAccountInsight(c echo.Context) error {
	creator, err := s.creator(c)
	if creator == nil {
		return err
	}

	var insight models.AccountInsight
	if err := c.Bind(&insight); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if insight.FollowersCount < 0 {
		return errorJSON(c, http.StatusBadRequest, "followers_count must not be negative")
	}
	insight.CreatorID = creator.ID
	if insight.RecordedAt.IsZero() {
		insight.RecordedAt = s.now()
	}

	if err := s.opts.Ingestor.SaveAccountInsight(c.Request().Context(), insight); err != nil {
		s.log.WithError(err).WithField("creator_id", creator.ID).Error("Failed to save account insight")
		return errorJSON(c, http.StatusInternalServerError, "failed to save account insight")
	}
	return c.JSON(http.StatusCreated, insight)
}
