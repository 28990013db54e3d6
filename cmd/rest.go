package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	coreconfig "github.com/AzielCF/wa-amo-bridge/core/config"
	"github.com/AzielCF/wa-amo-bridge/pkg/msgworker"
	"github.com/AzielCF/wa-amo-bridge/ui/rest"
	"github.com/AzielCF/wa-amo-bridge/ui/rest/middleware"
	"github.com/AzielCF/wa-amo-bridge/ui/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const bodyLimit = 10 * 1024 * 1024

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the webhook receivers, the REST API and the chat UI",
	Run:   restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(_ *cobra.Command, _ []string) {
	cfg := coreconfig.Global

	fiberConfig := fiber.Config{
		EnableTrustedProxyCheck: true,
		BodyLimit:               bodyLimit,
		Network:                 "tcp",
		AppName:                 "WhatsApp AmoCRM Bridge",
		ServerHeader:            "Hidden",
	}
	if len(cfg.App.TrustedProxies) > 0 {
		fiberConfig.TrustedProxies = cfg.App.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedFor
	}

	app := fiber.New(fiberConfig)

	app.Use(requestid.New())

	origins := strings.Join(cfg.App.CorsAllowedOrigins, ", ")
	if !strings.Contains(origins, cfg.App.BaseUrl) {
		origins += ", " + cfg.App.BaseUrl
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.Recovery())

	app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		HSTSMaxAge:            31536000,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; connect-src 'self' ws: wss:;",
	}))

	if cfg.App.Debug {
		app.Use(logger.New())
	}

	app.Static(cfg.App.BasePath+"/statics", cfg.Paths.Statics)

	// Provider webhooks and the probe live outside basic auth.
	root := app.Group(cfg.App.BasePath)
	rest.InitRestWebhook(root, webhookUsecase)

	apiGroup := app.Group(cfg.App.BasePath + "/api")
	apiGroup.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 15 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))

	if len(cfg.App.BasicAuth) > 0 {
		account := make(map[string]string)
		for _, basicAuth := range cfg.App.BasicAuth {
			ba := strings.SplitN(basicAuth, ":", 2)
			if len(ba) != 2 {
				logrus.Fatalln("Basic auth is not valid, please this following format <user>:<secret>")
			}
			account[ba[0]] = ba[1]
		}
		apiGroup.Use(basicauth.New(basicauth.Config{
			Users: account,
			Next: func(c *fiber.Ctx) bool {
				return c.Method() == fiber.MethodOptions
			},
		}))
	} else {
		logrus.Warn("[REST] APP_BASIC_AUTH is empty; the API is unauthenticated")
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
		stopHub()
		StopApp()
	}()

	rest.InitRestHealth(root, apiGroup, healthUsecase)
	rest.InitRestSend(apiGroup, sendUsecase)
	rest.InitRestChat(apiGroup, chatUsecase)
	rest.InitRestAmo(apiGroup, amoUsecase, sendUsecase, cfg.App.Environment == "development")
	rest.InitRestSettings(apiGroup, amoUsecase)
	rest.InitRestMonitoring(apiGroup, msgworker.GetGlobalPool())
	websocket.RegisterRoutes(app.Group(cfg.App.BasePath), hub)

	// 404 Handler ONLY for API group to prevent fallthrough to the UI
	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})

	app.Use(cfg.App.BasePath+"/", filesystem.New(filesystem.Config{
		Root:       http.FS(EmbedViews),
		PathPrefix: "views",
		Browse:     false,
		Index:      "index.html",
	}))

	logrus.Infof("[REST] listening on :%s (env %s)", cfg.App.Port, cfg.App.Environment)
	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.Fatalln("Failed to start: ", err.Error())
	}
}
