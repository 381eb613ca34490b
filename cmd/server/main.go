package main

import (
	"context"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"studio_booking_echo/internal/config"
	"studio_booking_echo/internal/handlers"
	"studio_booking_echo/internal/logger"
	authMiddleware "studio_booking_echo/internal/middleware"
	"studio_booking_echo/internal/services"
	"studio_booking_echo/internal/tasks"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init("server", cfg.Debug)
	loc := cfg.Location()
	ctx := context.Background()

	db, err := services.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run database migrations")
	}

	authClient, err := services.InitFirebase(cfg.FirebaseCredentialsFile)
	if err != nil {
		log.Warn().Err(err).Msg("firebase initialization failed, auth will reject all requests")
	}

	var cache *services.RedisCache
	if cfg.RedisURL != "" {
		cache, err = services.NewRedisCache(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, running without cache")
			cache = nil
		}
	}

	slots, err := services.NewSheetsSlotSource(ctx, cfg.GoogleCredentialsFile, cfg.SpreadsheetID, cache, loc)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to schedule sheet")
	}

	var calendar services.CalendarWriter
	if cal, err := services.NewCalendarService(ctx, cfg.GoogleCredentialsFile, cfg.TrainerCalendars(), loc); err != nil {
		log.Warn().Err(err).Msg("calendar unavailable, trainer calendars will not be updated")
	} else {
		calendar = cal
	}

	ledger := services.NewSubscriptionLedger(db)
	scheduler := tasks.NewScheduler(loc)
	bookingService := services.NewBookingService(db, slots, ledger, scheduler, calendar, loc)
	midtransService := services.NewMidtransService(cfg.MidtransServerKey, cfg.MidtransClientKey, cfg.MidtransIsProduction)
	paymentService := services.NewPaymentService(db, midtransService)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = authMiddleware.CustomErrorHandler
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	scheduleHandler := handlers.NewScheduleHandler(slots)
	bookingHandler := handlers.NewBookingHandler(db, bookingService)
	paymentHandler := handlers.NewPaymentHandler(db, cache, paymentService, midtransService, bookingService, cfg.PublicBaseURL)
	userHandler := handlers.NewUserHandler(db, ledger)
	adminHandler := handlers.NewAdminHandler(db, bookingService, ledger, loc)

	// Public routes: gateway callbacks and the post-payment landing page.
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.POST("/api/payments/midtrans/callback", paymentHandler.MidtransCallback)
	e.GET("/payments/return/:token", paymentHandler.PaymentReturn)

	// Authenticated API.
	api := e.Group("/api", authMiddleware.RequireAuth(authClient), authMiddleware.LoadUser(db))

	api.GET("/trainers", scheduleHandler.ListTrainers)
	api.GET("/trainers/:trainer/dates", scheduleHandler.ListDates)
	api.GET("/trainers/:trainer/dates/:date/times", scheduleHandler.ListTimes)

	api.POST("/bookings", bookingHandler.CreateBooking)
	api.GET("/bookings", bookingHandler.MyBookings)
	api.POST("/bookings/:id/cancel", bookingHandler.CancelBooking)
	api.POST("/bookings/:id/reschedule", bookingHandler.Reschedule)
	api.POST("/bookings/:id/reschedule/complete", bookingHandler.CompleteReschedule)
	api.POST("/bookings/:id/pay", paymentHandler.InitiatePayment)

	api.GET("/me", userHandler.Me)
	api.PATCH("/me", userHandler.UpdateMe)
	api.GET("/me/subscriptions", userHandler.MySubscriptions)

	// Admin API.
	admin := api.Group("/admin", authMiddleware.RequireAdmin(cfg))
	admin.GET("/bookings/today", adminHandler.TodayBookings)
	admin.POST("/bookings/:id/override-cancel", adminHandler.OverrideCancel)
	admin.POST("/bookings/:id/cancel", adminHandler.CancelBooking)
	admin.POST("/bookings/:id/done", adminHandler.MarkDone)
	admin.POST("/users/:id/subscriptions", adminHandler.GrantSubscription)

	log.Info().Str("port", cfg.Port).Msg("server starting")
	if err := e.Start(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
