package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/sudo-init-do/skygig/internal/admin"
	"github.com/sudo-init-do/skygig/internal/alerts"
	"github.com/sudo-init-do/skygig/internal/auth"
	"github.com/sudo-init-do/skygig/internal/clock"
	"github.com/sudo-init-do/skygig/internal/config"
	"github.com/sudo-init-do/skygig/internal/db"
	"github.com/sudo-init-do/skygig/internal/events"
	"github.com/sudo-init-do/skygig/internal/marketplace"
	"github.com/sudo-init-do/skygig/internal/matchhub"
	"github.com/sudo-init-do/skygig/internal/messaging"
	mware "github.com/sudo-init-do/skygig/internal/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk, ids := &clock.System{}, clock.UUID{}
	bus := events.NewBus()

	// Components
	jobs := marketplace.NewJobStore(clk, ids, bus, cfg.ClosingSoonHorizon)
	bus.SubscribeSync("jobs", jobs.HandleApplicationEvent,
		events.ApplicationSubmitted, events.ApplicationDecided, events.ApplicationWithdrawn)
	pipeline := marketplace.NewPipeline(clk, ids, bus, jobs)

	hub := matchhub.New(clk, bus, cfg.ClosingSoonHorizon)
	hub.Subscribe(bus)

	convs := messaging.NewStore(clk, ids, bus, jobs, nil)
	ws := messaging.NewHub(convs)
	if cfg.MessageDelivery == config.DeliveryPresence {
		convs.SetDeliveryPolicy(ws)
	}
	ws.Subscribe(bus)

	center := alerts.NewCenter(clk, ids)
	var dispatcher alerts.Dispatcher = alerts.Direct{Center: center}
	if cfg.RedisAddr != "" {
		asynqDispatcher := alerts.NewAsynqDispatcher(cfg.RedisAddr)
		defer asynqDispatcher.Close()
		processor := alerts.NewProcessor(center, cfg.RedisAddr)
		if err := processor.Start(); err != nil {
			log.Fatalf("notify: %v", err)
		}
		defer processor.Shutdown()
		dispatcher = asynqDispatcher
	} else {
		log.Println("[notify] REDIS_ADDR not set, delivering notifications in process")
	}
	alerts.NewFanout(dispatcher).Subscribe(bus)

	journal, err := db.OpenJournal(ctx, cfg)
	if err != nil {
		log.Fatalf("journal: %v", err)
	}
	if journal != nil {
		defer journal.Close()
		db.Subscribe(bus, journal)
	}

	e := echo.New()
	e.HideBanner = true

	// Basic middleware
	e.Use(middleware.Recover())
	// access log by path: websocket URLs carry ?token=
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339_nano}","remote_ip":"${remote_ip}","method":"${method}","path":"${path}","status":${status},"latency_human":"${latency_human}","error":"${error}"}` + "\n",
	}))
	if len(cfg.CORSAllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.CORSAllowedOrigins,
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := bus.Flush(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "event queues backed up"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	// Protected routes
	api := e.Group("")
	api.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	api.Use(mware.JWTMiddleware(cfg.JWTSecret))

	api.GET("/auth/me", auth.Me)

	posterOnly := mware.RequireRoles(auth.RolePoster)
	seekerOnly := mware.RequireRoles(auth.RoleSeeker)

	market := marketplace.NewHandler(jobs, pipeline)
	api.GET("/jobs", market.ListJobs)
	api.POST("/jobs", market.CreateJob, posterOnly)
	api.GET("/jobs/saved", market.SavedJobs, seekerOnly)
	api.GET("/jobs/:id", market.GetJob)
	api.PATCH("/jobs/:id", market.UpdateJob, posterOnly)
	api.POST("/jobs/:id/save", market.ToggleSavedJob, seekerOnly)
	api.POST("/jobs/:id/publish", market.PublishJob, posterOnly)
	api.POST("/jobs/:id/close", market.CloseJob, posterOnly)
	api.DELETE("/jobs/:id", market.DeleteJob, posterOnly)
	api.POST("/jobs/:id/applications", market.Apply, seekerOnly)
	api.GET("/jobs/:id/applications", market.ListApplicants, posterOnly)
	api.GET("/applications/me", market.MyApplications, seekerOnly)
	api.GET("/applications/:id", market.GetApplication)
	api.POST("/applications/:id/decision", market.DecideApplication, posterOnly)
	api.POST("/applications/:id/withdraw", market.WithdrawApplication, seekerOnly)

	stages := matchhub.NewHandler(hub)
	api.GET("/hub", stages.Overview)
	api.GET("/hub/jobs/:id", stages.GetStage)
	api.POST("/hub/jobs/:id/complete", stages.Complete)
	api.PATCH("/hub/jobs/:id/progress", stages.UpdateProgress)

	chat := messaging.NewHandler(convs)
	api.POST("/conversations", chat.OpenConversation)
	api.GET("/conversations", chat.ListConversations)
	api.GET("/conversations/unread", chat.UnreadCount)
	api.GET("/conversations/:id", chat.GetConversation)
	api.GET("/conversations/:id/messages", chat.ListMessages)
	api.POST("/conversations/:id/messages", chat.SendMessage)
	api.POST("/conversations/:id/read", chat.MarkRead)
	api.POST("/conversations/:id/delivered", chat.MarkDelivered)
	api.POST("/conversations/:id/pin", chat.TogglePin)
	api.POST("/conversations/:id/close", chat.CloseConversation)
	api.GET("/conversations/:id/ws", ws.ServeWS)

	inbox := alerts.NewHandler(center)
	api.GET("/notifications", inbox.ListNotifications)
	api.GET("/notifications/unread", inbox.UnreadCount)
	api.POST("/notifications/:id/read", inbox.MarkNotificationRead)
	api.POST("/notifications/read", inbox.MarkAllRead)
	api.DELETE("/notifications/read", inbox.ClearRead)

	// Admin routes
	adm := admin.NewHandler(journal, jobs)
	adminGroup := e.Group("/admin")
	adminGroup.Use(mware.JWTMiddleware(cfg.JWTSecret))
	adminGroup.Use(mware.AdminGuard)
	adminGroup.GET("/stats", adm.Stats)
	adminGroup.GET("/events", adm.Events)
	adminGroup.GET("/events/:id", adm.AggregateEvents)

	go func() {
		log.Printf("API server listening on :%s", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("[api][ERROR] shutdown: %v", err)
	}
	if err := bus.Flush(shutdownCtx); err != nil {
		log.Printf("[events][ERROR] flush on shutdown: %v", err)
	}
	bus.Close()
}
