package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/realtime"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/router"

	"github.com/gdbrns/go-whatsapp-session-gateway/internal"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Gateway Components
	gw, err := internal.NewGateway(ctx)
	if err != nil {
		log.Print(nil).Fatal(err.Error())
	}

	// Initialize Cron
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
	), cron.WithSeconds())

	// Initialize Fiber
	app := fiber.New(fiber.Config{
		ErrorHandler:   router.HttpErrorHandler,
		BodyLimit:      router.BodyLimitBytes(),
		ReadBufferSize: 8192,
	})

	// Request ID + panic recovery (structured JSON)
	app.Use(router.HttpRequestID())
	app.Use(router.RecoveryMiddleware())

	// Router Compression
	app.Use(compress.New(compress.Config{
		Level: compress.Level(router.GZipLevel),
	}))

	// Router CORS
	app.Use(cors.New(cors.Config{
		AllowOrigins: router.CORSOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE",
	}))

	// Router Security
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
	}))

	// Router RealIP
	app.Use(router.HttpRealIP())

	// Router Default Handler
	app.Get("/favicon.ico", router.ResponseNoContent)

	// Load Internal Routes
	internal.Routes(app, gw)

	// Start Realtime Hub and Server
	go gw.Hub.Run(ctx)
	rtServer := realtime.NewServer(gw.Hub, internal.RealtimeAddr())
	go func() {
		if err := rtServer.ListenAndServe(); err != nil {
			log.Print(nil).Fatal(err.Error())
		}
	}()

	// Running Startup Tasks
	go internal.Startup(ctx, gw)

	// Running Routines Tasks
	internal.Routines(c, gw)
	c.Start()

	// Start Server
	address := env.GetEnvStringOrDefault("SERVER_ADDRESS", "0.0.0.0")
	port := env.GetEnvStringOrDefault("SERVER_PORT", "7001")
	go func() {
		if err := app.Listen(address + ":" + port); err != nil {
			log.Print(nil).Fatal(err.Error())
		}
	}()

	// Watch for Shutdown Signal
	sigShutdown := make(chan os.Signal, 1)
	signal.Notify(sigShutdown, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sigShutdown

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	// Try To Shutdown Server
	if err := app.ShutdownWithContext(ctxShutdown); err != nil {
		log.Print(nil).Error(err.Error())
	}
	if err := rtServer.Shutdown(ctxShutdown); err != nil {
		log.Print(nil).Error(err.Error())
	}

	// Close Sessions and Drain Webhooks
	gw.Manager.CloseAll(ctxShutdown)
	gw.Webhooks.Shutdown()

	// Try To Shutdown Cron
	c.Stop()
}
