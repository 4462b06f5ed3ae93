package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/socialqueue/socialqueue/internal/models"
	"github.com/socialqueue/socialqueue/internal/repository"
	"github.com/socialqueue/socialqueue/internal/scheduler"
	"github.com/socialqueue/socialqueue/internal/transfer"
)

type PostHandler struct {
	s     *scheduler.Scheduler
	posts repository.PostRepository
}

func NewPostHandler(s *scheduler.Scheduler, posts repository.PostRepository) *PostHandler {
	return &PostHandler{s: s, posts: posts}
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	filter := repository.PostFilter{
		Status:   c.Query("status"),
		Platform: c.Query("platform"),
		Limit:    c.QueryInt("limit", 100),
		Offset:   c.QueryInt("skip", 0),
	}
	if filter.Status != "" && !models.ValidStatus(filter.Status) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown status"})
	}
	if filter.Platform != "" && !models.ValidPlatform(filter.Platform) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown platform"})
	}

	posts, err := h.posts.List(c.Context(), filter)
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list posts",
		})
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) ListScheduled(c *fiber.Ctx) error {
	var start, end time.Time
	var err error

	if v := c.Query("start"); v != "" {
		if start, err = parseTime(v); err != nil {
			return schedulerError(c, err)
		}
	}
	if v := c.Query("end"); v != "" {
		if end, err = parseTime(v); err != nil {
			return schedulerError(c, err)
		}
	}

	posts, err := h.s.GetScheduled(c.Context(), start, end)
	if err != nil {
		return schedulerError(c, err)
	}

	infos := make([]*transfer.ScheduledPostInfo, 0, len(posts))
	for _, post := range posts {
		infos = append(infos, transfer.NewScheduledPostInfo(post))
	}
	return c.Status(fiber.StatusOK).JSON(infos)
}

func (h *PostHandler) SchedulePost(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid post id"})
	}

	var req transfer.ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unable to parse body"})
	}

	publishTime, err := parseTime(req.PublishTime)
	if err != nil {
		return schedulerError(c, err)
	}

	post, err := h.s.Schedule(c.Context(), int64(postID), publishTime)
	if err != nil {
		return schedulerError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.NewPostResponse(post, "Post scheduled successfully"))
}

func (h *PostHandler) ReschedulePost(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid post id"})
	}

	var req transfer.ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unable to parse body"})
	}

	publishTime, err := parseTime(req.PublishTime)
	if err != nil {
		return schedulerError(c, err)
	}

	post, err := h.s.Reschedule(c.Context(), int64(postID), publishTime)
	if err != nil {
		return schedulerError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.NewPostResponse(post, "Post rescheduled successfully"))
}

func (h *PostHandler) CancelPost(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid post id"})
	}

	post, err := h.s.Cancel(c.Context(), int64(postID))
	if err != nil {
		return schedulerError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.NewPostResponse(post, "Schedule cancelled"))
}

func (h *PostHandler) PublishPost(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid post id"})
	}

	post, result, err := h.s.PublishNow(c.Context(), int64(postID))
	if err != nil {
		return schedulerError(c, err)
	}

	if !result.Success {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":  result.Error,
			"status": post.Status,
		})
	}
	return c.Status(fiber.StatusOK).JSON(transfer.NewPostResponse(post, "Successfully published post"))
}

func (h *PostHandler) UpdateStatus(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid post id"})
	}

	var req transfer.StatusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unable to parse body"})
	}

	post, err := h.s.UpdateStatus(c.Context(), int64(postID), req.Status)
	if err != nil {
		return schedulerError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.NewPostResponse(post, "Post status updated"))
}

func (h *PostHandler) PostStats(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid post id"})
	}

	result, err := h.s.Stats(c.Context(), int64(postID))
	if err != nil {
		return schedulerError(c, err)
	}
	if !result.Success {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": result.Error})
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *PostHandler) DeleteRemotePost(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid post id"})
	}

	result, err := h.s.DeleteRemote(c.Context(), int64(postID))
	if err != nil {
		return schedulerError(c, err)
	}
	if !result.Success {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": result.Error})
	}
	return c.Status(fiber.StatusOK).JSON(result)
}
