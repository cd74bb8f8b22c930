package certificateRoutes

import (
	controllers "certvault/controllers/certificate"
	validators "certvault/validators/certificate"

	"github.com/gofiber/fiber/v2"
)

// SetupCertificateRoutes sets up the certificate API
func SetupCertificateRoutes(app *fiber.App, h *controllers.CertificateController) {
	api := app.Group("/api")

	// Registry
	api.Get("/certificates", validators.ListCertificates(), h.ListCertificates)
	api.Post("/certificates", validators.CreateCertificate(), h.CreateCertificate)
	api.Get("/certificates/export", validators.ExportCertificates(), h.ExportCertificates)
	api.Post("/upload", validators.UploadSpreadsheet(), h.UploadCertificates)

	// Approval round-trip
	api.Post("/send-admin-notification", validators.SendNotification(), h.SendAdminNotification)
	api.Get("/approve-request", validators.ApproveRequest(), h.ApproveRequest)

	// Protected actions
	api.Get("/certificates/:id/pdf", validators.CertificateParam(), validators.DownloadCertificate(), h.DownloadCertificate)
	api.Post("/certificates/:id/email", validators.CertificateParam(), validators.EmailCertificate(), h.EmailCertificate)
	api.Post("/certificates/pdf/bulk", validators.BulkDownload(), h.BulkDownload)
}
