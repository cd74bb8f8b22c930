package main

import (
	"certvault/approval"
	"certvault/artifact"
	"certvault/config"
	controllers "certvault/controllers/certificate"
	"certvault/database"
	"certvault/ingest"
	"certvault/listing"
	"certvault/metrics"
	"certvault/middleware"
	"certvault/notify"
	certificateRoutes "certvault/routers/certificateRoutes"
	systemRoutes "certvault/routers/systemRoutes"
	"certvault/utils"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// bodyLimit leaves room for multipart overhead so oversized spreadsheets
// reach the upload handler and get its 413 message.
const bodyLimit = ingest.MaxUploadSize + 2<<20

func main() {
	cfg := config.LoadConfig()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	machine := approval.NewMachine(db, approval.NewSigner(cfg.ApprovalSecret, cfg.ApprovalTokenTTL), m)
	baseURL := notify.ResolveBaseURL(cfg.PublicAppURL, cfg.VercelURL, cfg.NextPublicVercelURL, cfg.Port)
	dispatcher := notify.NewDispatcher(machine, newMailer(cfg), baseURL, cfg.EmailSenderName, m)

	h := &controllers.CertificateController{
		DB:         db,
		Engine:     ingest.NewEngine(db, m),
		Machine:    machine,
		Dispatcher: dispatcher,
		Generator:  artifact.NewGenerator(newAssetSource(cfg), m),
		Lister:     listing.NewLister(db),
		AdminEmail: cfg.AdminEmail,
	}

	scheduler, err := utils.InitializeSchedulers(cfg.TokenPruneSchedule, machine)
	if err != nil {
		log.Fatalf("Failed to start schedulers: %v", err)
	}
	defer scheduler.Stop()

	app := fiber.New(fiber.Config{
		BodyLimit:    bodyLimit,
		ErrorHandler: middleware.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST",
		AllowHeaders: "Content-Type,Authorization",
	}))

	// Enable the built-in logger middleware to log all requests
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
	}))

	// Templates and fonts are served from the public folder too
	app.Static("/", cfg.AssetDir)

	certificateRoutes.SetupCertificateRoutes(app, h)
	systemRoutes.SetupSystemRoutes(app, h, registry)

	log.Printf("Approval links point at %s", baseURL)
	log.Printf("Server is running on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}

func newMailer(cfg *config.Config) notify.Mailer {
	from := notify.Sender{Address: cfg.EmailSender, Name: cfg.EmailSenderName}
	switch cfg.MailTransport {
	case "smtp":
		return &notify.SMTPMailer{Host: cfg.SMTPHost, Port: cfg.SMTPPort, Password: cfg.Password, From: from}
	case "log":
		return notify.LogMailer{}
	case "sendgrid":
		return notify.NewSendGridMailer(cfg.SendGridAPIKey, from)
	}
	log.Printf("Warning: unknown MAIL_TRANSPORT %q, emails will only be logged", cfg.MailTransport)
	return notify.LogMailer{}
}

func newAssetSource(cfg *config.Config) artifact.AssetSource {
	if cfg.AssetBaseURL != "" {
		return artifact.NewHTTPAssets(cfg.AssetBaseURL)
	}
	return artifact.DirAssets{Root: cfg.AssetDir}
}
