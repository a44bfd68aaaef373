package api

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/beunreal/story-service/internal/apperr"
	"github.com/beunreal/story-service/internal/domain"
	"github.com/beunreal/story-service/internal/media"
	"github.com/beunreal/story-service/internal/middleware"
	"github.com/beunreal/story-service/internal/service"
	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	svc       *service.StoryService
	maxUpload int64
}

func NewHandler(svc *service.StoryService, maxUploadBytes int64) *Handler {
	return &Handler{svc: svc, maxUpload: maxUploadBytes}
}

// POST /api/stories (multipart: media, latitude, longitude, mediaType, caption)
func (h *Handler) CreateStory(c *fiber.Ctx) error {
	var fields []apperr.FieldError
	lat, ok := formFloat(c.FormValue("latitude"))
	if !ok {
		fields = append(fields, apperr.FieldError{Field: "latitude", Message: "must be a number between -90 and 90"})
	}
	lng, ok := formFloat(c.FormValue("longitude"))
	if !ok {
		fields = append(fields, apperr.FieldError{Field: "longitude", Message: "must be a number between -180 and 180"})
	}
	declared := c.FormValue("mediaType")
	if _, err := domain.ParseMediaKind(declared); err != nil {
		fields = append(fields, apperr.FieldError{Field: "mediaType", Message: "must be one of image, video"})
	}
	fh, err := c.FormFile("media")
	if err != nil {
		fields = append(fields, apperr.FieldError{Field: "media", Message: "media file is required"})
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid payload", fields...)
	}

	if err := media.CheckSize(fh.Size, h.maxUpload); err != nil {
		return err
	}
	f, err := fh.Open()
	if err != nil {
		return apperr.Field("media", "cannot read file")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		return apperr.Field("media", "cannot read file")
	}
	if err := media.CheckSize(int64(len(data)), h.maxUpload); err != nil {
		return err
	}

	ct := media.ContentType(data)
	kind, err := media.Classify(ct, declared)
	if err != nil {
		return err
	}

	story, err := h.svc.UploadStory(c.UserContext(), service.UploadStoryInput{
		AuthorID:  middleware.UserID(c),
		File:      media.File{Name: fh.Filename, ContentType: ct, Kind: kind, Data: data},
		Latitude:  lat,
		Longitude: lng,
		Caption:   c.FormValue("caption"),
	})
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusCreated, story)
}

// GET /api/stories/nearby?lat=&lng=&radius=
func (h *Handler) Nearby(c *fiber.Ctx) error {
	var fields []apperr.FieldError
	lat, ok := queryFloat(c, "lat", "latitude")
	if !ok {
		fields = append(fields, apperr.FieldError{Field: "lat", Message: "must be a number between -90 and 90"})
	}
	lng, ok := queryFloat(c, "lng", "longitude")
	if !ok {
		fields = append(fields, apperr.FieldError{Field: "lng", Message: "must be a number between -180 and 180"})
	}
	radius := h.svc.DefaultRadius()
	if raw := strings.TrimSpace(c.Query("radius")); raw != "" {
		r, ok := formFloat(raw)
		if !ok || r <= 0 {
			fields = append(fields, apperr.FieldError{Field: "radius", Message: "must be a positive number of meters"})
		}
		radius = r
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid coordinates", fields...)
	}

	stories, err := h.svc.FindNearby(c.UserContext(), lat, lng, radius)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, stories)
}

// GET /api/stories/user/:userId
func (h *Handler) UserStories(c *fiber.Ctx) error {
	stories, err := h.svc.ListUserStories(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, stories)
}

// GET /api/stories/:id
func (h *Handler) GetStory(c *fiber.Ctx) error {
	story, err := h.svc.GetStory(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, story)
}

// GET /api/stories/:id/reactions
func (h *Handler) Reactions(c *fiber.Ctx) error {
	rs, err := h.svc.ListReactions(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, rs)
}

// GET /api/stories/:id/comments
func (h *Handler) Comments(c *fiber.Ctx) error {
	cs, err := h.svc.ListComments(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, cs)
}

type reactionRequest struct {
	StoryID string `json:"storyId" validate:"required"`
	Emoji   string `json:"emoji" validate:"required,max=16"`
}

// POST /api/stories/reactions {storyId, emoji}
func (h *Handler) ToggleReaction(c *fiber.Ctx) error {
	var req reactionRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	added, err := h.svc.ToggleReaction(c.UserContext(), strings.TrimSpace(req.StoryID), middleware.UserID(c), req.Emoji)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if added {
		status = fiber.StatusCreated
	}
	return JSONSuccess(c, status, fiber.Map{"added": added})
}

type commentRequest struct {
	StoryID string `json:"storyId" validate:"required"`
	Content string `json:"content" validate:"required,max=1000"`
}

// POST /api/stories/comments {storyId, content}
func (h *Handler) AddComment(c *fiber.Ctx) error {
	var req commentRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	comment, err := h.svc.AddComment(c.UserContext(), strings.TrimSpace(req.StoryID), middleware.UserID(c), req.Content)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusCreated, comment)
}

// DELETE /api/stories/:id
func (h *Handler) DeleteStory(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.svc.DeleteStory(c.UserContext(), id, middleware.UserID(c)); err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, fiber.Map{"id": id, "deleted": true})
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.SendString("ok")
}

func (h *Handler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()
	if err := h.svc.Ready(ctx); err != nil {
		return JSONError(c, fiber.StatusServiceUnavailable, "store unavailable", nil)
	}
	return c.SendString("ready")
}

func formFloat(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func queryFloat(c *fiber.Ctx, keys ...string) (float64, bool) {
	for _, k := range keys {
		if raw := c.Query(k); raw != "" {
			return formFloat(raw)
		}
	}
	return 0, false
}
