package httpapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bobuk/opscal/internal/models"
	"github.com/bobuk/opscal/internal/notify"
	"github.com/bobuk/opscal/internal/services"
	"github.com/bobuk/opscal/internal/store"
)

// parseBody decodes the JSON body, keeping validation errors raised while
// decoding so they map to 400 with their own message.
func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return verr
		}
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	return nil
}

func queryTime(c *fiber.Ctx, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &models.ValidationError{Field: key, Message: fmt.Sprintf("%q is not an RFC3339 time", raw)}
	}
	return t, nil
}

func (s *Server) listEvents(c *fiber.Ctx) error {
	from, err := queryTime(c, "from")
	if err != nil {
		return err
	}
	to, err := queryTime(c, "to")
	if err != nil {
		return err
	}
	f := store.EventFilter{From: from, To: to, Limit: c.QueryInt("limit")}
	if t := c.Query("type"); t != "" {
		f.Types = []models.EventType{models.EventType(t)}
	}
	if st := c.Query("status"); st != "" {
		f.Statuses = []models.EventStatus{models.EventStatus(st)}
	}

	views, err := s.events.ListWithStatus(c.UserContext(), f)
	if err != nil {
		return err
	}
	out := make([]eventDTO, 0, len(views))
	for _, v := range views {
		out = append(out, newEventViewDTO(v))
	}
	return c.JSON(fiber.Map{"events": out})
}

func (s *Server) createEvent(c *fiber.Ctx) error {
	var in models.CreateEventInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	ev, err := s.events.Create(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"event": newEventDTO(ev)})
}

func (s *Server) updateEvent(c *fiber.Ctx) error {
	var in models.UpdateEventInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	ev, err := s.events.Update(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"event": newEventDTO(ev)})
}

func (s *Server) deleteEvent(c *fiber.Ctx) error {
	if err := s.events.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type cancelBody struct {
	Reason     models.CancellationReason `json:"reason"`
	Note       string                    `json:"note"`
	Notify     bool                      `json:"notify"`
	IfRevision *int64                    `json:"if_revision"`
}

func (s *Server) cancelEvent(c *fiber.Ctx) error {
	var body cancelBody
	if len(c.Body()) > 0 {
		if err := parseBody(c, &body); err != nil {
			return err
		}
	}
	ev, err := s.events.Cancel(c.UserContext(), c.Params("id"), services.CancelOptions{
		Reason:     body.Reason,
		Note:       body.Note,
		Notify:     body.Notify,
		IfRevision: body.IfRevision,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"event": newEventDTO(ev)})
}

func (s *Server) shiftEvents(c *fiber.Ctx) error {
	var req services.ShiftRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if len(req.EventIDs) == 0 {
		return &models.ValidationError{Field: "event_ids", Message: "at least one event is required"}
	}
	if req.ShiftMinutes == 0 {
		return &models.ValidationError{Field: "shift_minutes", Message: "shift must not be zero"}
	}
	return c.JSON(s.mayday.ShiftEvents(c.UserContext(), req))
}

func (s *Server) cancelEvents(c *fiber.Ctx) error {
	var req services.CancelRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if len(req.EventIDs) == 0 {
		return &models.ValidationError{Field: "event_ids", Message: "at least one event is required"}
	}
	return c.JSON(s.mayday.CancelEventsWithNotification(c.UserContext(), req))
}

func (s *Server) runSync(c *fiber.Ctx) error {
	return c.JSON(s.sync.FullSync(c.UserContext()))
}

// tokenID resolves the token id a customer link carries.
func (s *Server) tokenID(raw, purpose string) (string, error) {
	if s.links == nil {
		return raw, nil
	}
	claims, err := s.links.Parse(raw, purpose)
	if err != nil {
		return "", err
	}
	return claims.TokenID, nil
}

func (s *Server) confirm(c *fiber.Ctx) error {
	id, err := s.tokenID(c.Params("token"), notify.PurposeConfirm)
	if err != nil {
		return err
	}
	ev, err := s.mayday.ConfirmToken(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Thank you, your confirmation was recorded.", "event": newEventDTO(ev)})
}

func (s *Server) rebook(c *fiber.Ctx) error {
	id, err := s.tokenID(c.Params("token"), notify.PurposeRebook)
	if err != nil {
		return err
	}
	ev, err := s.mayday.UseRebookToken(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Your rebooking request was recorded.", "event": newEventDTO(ev)})
}
