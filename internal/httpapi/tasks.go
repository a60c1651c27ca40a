package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gurkanbulca/taskassign/internal/middleware"
	"github.com/gurkanbulca/taskassign/internal/service"
)

func listQuery(c *fiber.Ctx) service.ListQuery {
	return service.ListQuery{
		Status:    c.Query("status"),
		Priority:  c.Query("priority"),
		Category:  c.Query("category"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
		Limit:     c.QueryInt("limit"),
		Offset:    c.QueryInt("offset"),
	}
}

func (h *Handlers) ListTasks(c *fiber.Ctx) error {
	req, err := h.requester(c)
	if err != nil {
		return err
	}
	list, err := h.tasks.ListAll(c.UserContext(), req, listQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (h *Handlers) ListUserTasks(c *fiber.Ctx) error {
	req, err := h.requester(c)
	if err != nil {
		return err
	}
	list, err := h.tasks.ListForUser(c.UserContext(), req, c.Params("userId"), listQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (h *Handlers) TaskStats(c *fiber.Ctx) error {
	req, err := h.requester(c)
	if err != nil {
		return err
	}
	counts, err := h.tasks.Stats(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(statsResponse{Stats: counts, Total: counts.Total()})
}

func (h *Handlers) GetTask(c *fiber.Ctx) error {
	req, err := h.requester(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "taskId")
	if err != nil {
		return err
	}
	task, err := h.tasks.Get(c.UserContext(), req, id)
	if err != nil {
		return err
	}
	return c.JSON(task)
}

func (h *Handlers) CreateTask(c *fiber.Ctx) error {
	req, err := h.requester(c)
	if err != nil {
		return err
	}

	var body createTaskRequest
	if err := h.validator.BindAndValidate(c, &body); err != nil {
		return err
	}
	due, ok := parseDueDate(body.DueDate)
	if !ok {
		return &middleware.ValidationError{
			Message: "validation failed",
			Fields: []middleware.FieldError{{
				Field:   "dueDate",
				Rule:    "date",
				Message: "must be a date (YYYY-MM-DD) or an RFC 3339 time",
			}},
		}
	}

	task, err := h.tasks.Create(c.UserContext(), req, service.CreateTaskInput{
		Title:       body.Title,
		Description: body.Description,
		AssignedTo:  body.AssignedTo,
		Status:      body.Status,
		Priority:    body.Priority,
		Category:    body.Category,
		DueDate:     &due,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(task)
}

func (h *Handlers) UpdateTaskStatus(c *fiber.Ctx) error {
	req, err := h.requester(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "taskId")
	if err != nil {
		return err
	}

	var body updateStatusRequest
	if err := h.validator.BindAndValidate(c, &body); err != nil {
		return err
	}

	task, err := h.tasks.UpdateStatus(c.UserContext(), req, id, body.Status, body.Version)
	if err != nil {
		return err
	}
	return c.JSON(task)
}

func (h *Handlers) DeleteTask(c *fiber.Ctx) error {
	req, err := h.requester(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "taskId")
	if err != nil {
		return err
	}
	if err := h.tasks.Delete(c.UserContext(), req, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
