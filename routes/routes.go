package routes

import (
	"time"

	"github.com/Dosada05/event-registration/handlers"
	"github.com/Dosada05/event-registration/middleware"
	"github.com/Dosada05/event-registration/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
)

const requestTimeout = 30 * time.Second

type Handlers struct {
	Auth          *middleware.Authenticator
	Events        *handlers.EventHandler
	Registrations *handlers.RegistrationHandler
	Teams         *handlers.TeamHandler
	WebSocket     *handlers.WebSocketHandler
}

func SetupRoutes(router chi.Router, h Handlers, allowedOrigins []string) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", handlers.Health)
	router.Get("/swagger/doc.json", handlers.SwaggerDoc)
	router.Get("/swagger/*", handlers.SwaggerUI())

	// Websocket upgrades must not run under the request timeout.
	router.Get("/ws/events/{eventID}", h.WebSocket.ServeWs)

	router.Group(func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(requestTimeout))

		r.Get("/events/{eventID}", h.Events.GetEvent)

		r.Group(func(r chi.Router) {
			r.Use(h.Auth.Authenticate)

			r.Post("/events/{eventID}/register", h.Registrations.Register)
			r.Delete("/events/{eventID}/registration", h.Registrations.Cancel)
			r.Post("/events/{eventID}/teams", h.Teams.CreateTeam)
			r.Get("/me/seats", h.Registrations.MySeats)

			r.Route("/teams", func(r chi.Router) {
				r.Post("/join", h.Teams.JoinTeam)
				r.Get("/{teamID}", h.Teams.GetTeam)
				r.Delete("/{teamID}", h.Teams.CancelTeam)
				r.Post("/{teamID}/complete", h.Teams.CompleteTeam)
				r.Post("/{teamID}/invite", h.Teams.RegenerateInvite)
				r.Delete("/{teamID}/members/{memberID}", h.Teams.RemoveMember)
			})

			// Organizer routes
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleOrganizer, models.RoleAdmin))

				r.Post("/events", h.Events.CreateEvent)
				r.Post("/events/{eventID}/publish", h.Events.PublishEvent)
				r.Post("/events/{eventID}/close", h.Events.CloseEvent)
				r.Get("/events/{eventID}/registrations", h.Events.ListRegistrations)
				r.Post("/checkin", h.Registrations.CheckIn)
			})
		})
	})

	router.NotFound(handlers.NotFound)
}
