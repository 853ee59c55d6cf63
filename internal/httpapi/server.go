package httpapi

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/bobuk/opscal/internal/calendar"
	"github.com/bobuk/opscal/internal/models"
	"github.com/bobuk/opscal/internal/notify"
	"github.com/bobuk/opscal/internal/services"
	"github.com/bobuk/opscal/internal/store"
)

// Server exposes the event, MAYDAY and sync operations over JSON HTTP.
type Server struct {
	app    *fiber.App
	events *services.EventService
	sync   *services.SyncService
	mayday *services.MaydayService
	links  *notify.Links
	lg     *log.Logger
}

// New builds the server. links may be nil, in which case customer links
// carry the bare token id.
func New(events *services.EventService, sync *services.SyncService, mayday *services.MaydayService, links *notify.Links, lg *log.Logger) *Server {
	if lg == nil {
		lg = log.Default()
	}
	s := &Server{
		events: events,
		sync:   sync,
		mayday: mayday,
		links:  links,
		lg:     lg,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "opscal",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.app.Group("/api")

	api.Get("/events", s.listEvents)
	api.Post("/events", s.createEvent)
	api.Patch("/events/:id", s.updateEvent)
	api.Delete("/events/:id", s.deleteEvent)
	api.Post("/events/:id/cancel", s.cancelEvent)

	mayday := api.Group("/mayday")
	mayday.Post("/shift", s.shiftEvents)
	mayday.Post("/cancel", s.cancelEvents)

	api.Post("/sync", s.runSync)

	s.app.Get("/confirm/:token", s.confirm)
	s.app.Get("/rebook/:token", s.rebook)
}

// App returns the underlying fiber app, mostly for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	s.lg.Printf("🌐 Listening on %s", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		s.lg.Printf("❗️ %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func statusFor(err error) int {
	var (
		ferr *fiber.Error
		verr *models.ValidationError
	)
	switch {
	case errors.As(err, &ferr):
		return ferr.Code
	case errors.As(err, &verr), errors.Is(err, notify.ErrInvalidLink):
		return fiber.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, calendar.ErrRemoteUnavailable),
		errors.Is(err, calendar.ErrRemoteRejected),
		errors.Is(err, calendar.ErrRemoteNotFound):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}
