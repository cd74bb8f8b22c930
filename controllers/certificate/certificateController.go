package controllers

import (
	"bytes"
	"certvault/approval"
	"certvault/artifact"
	"certvault/ingest"
	"certvault/listing"
	"certvault/middleware"
	"certvault/models"
	"certvault/notify"
	"certvault/utils"
	validators "certvault/validators/certificate"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const lockedMessage = "This certificate is locked. An approval request has been sent to the administrator."

// CertificateController serves the certificate API. Every dependency is
// constructed by main and passed in.
type CertificateController struct {
	DB         *gorm.DB
	Engine     *ingest.Engine
	Machine    *approval.Machine
	Dispatcher *notify.Dispatcher
	Generator  *artifact.Generator
	Lister     *listing.Lister
	AdminEmail string
}

// ListCertificates returns a page of certificates with their approval flag.
func (h *CertificateController) ListCertificates(c *fiber.Ctx) error {
	q := c.Locals(validators.LocalQuery).(listing.Query)

	page, err := h.Lister.List(c.UserContext(), q)
	if err != nil {
		log.Printf("Fetch error: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Error fetching certificates.", nil)
	}

	hospitals := page.Hospitals
	if hospitals == nil {
		hospitals = []string{}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":    true,
		"data":       page.Data,
		"total":      page.Total,
		"page":       page.Page,
		"limit":      page.Limit,
		"totalPages": page.TotalPages,
		"filters":    fiber.Map{"hospitals": hospitals},
	})
}

// CreateCertificate stores a single certificate.
func (h *CertificateController) CreateCertificate(c *fiber.Ctx) error {
	req := c.Locals(validators.LocalCertificate).(*validators.CreateCertificateRequest)

	cert := models.Certificate{
		CertificateNo: req.CertificateNo,
		Name:          req.Name,
		Hospital:      req.Hospital,
		DOI:           req.DOI,
	}
	if err := h.Engine.Create(c.UserContext(), &cert); err != nil {
		if errors.Is(err, ingest.ErrDuplicate) {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Creation failed: Certificate No. must be unique.", nil)
		}
		log.Printf("Creation error: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Server error during certificate creation.", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Certificate created successfully!", cert)
}

// ExportCertificates downloads the filtered list as a workbook.
func (h *CertificateController) ExportCertificates(c *fiber.Ctx) error {
	q := c.Locals(validators.LocalQuery).(listing.Query)

	page, err := h.Lister.List(c.UserContext(), q)
	if err != nil {
		log.Printf("Export error: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Error exporting certificates.", nil)
	}

	var buf bytes.Buffer
	if err := listing.WriteXLSX(&buf, page.Data); err != nil {
		log.Printf("Export error: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Error exporting certificates.", nil)
	}

	name := fmt.Sprintf("certificates_%s.xlsx", time.Now().Format("2006-01-02"))
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, attachment(name))
	return c.Status(fiber.StatusOK).Send(buf.Bytes())
}

// UploadCertificates ingests a spreadsheet of certificates.
func (h *CertificateController) UploadCertificates(c *fiber.Ctx) error {
	file := c.Locals(validators.LocalUpload).(*multipart.FileHeader)

	data, err := utils.ReadUploadedFile(file, ingest.MaxUploadSize)
	if err != nil {
		if errors.Is(err, utils.ErrFileTooLarge) {
			return middleware.JsonResponse(c, fiber.StatusRequestEntityTooLarge, false, "File size exceeds 10MB limit.", nil)
		}
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Unable to read uploaded file.", nil)
	}

	report, err := h.Engine.Ingest(c.UserContext(), ingest.Upload{
		FileName:    file.Filename,
		ContentType: utils.UploadContentType(file),
		Data:        data,
	})
	if err != nil {
		return uploadError(c, file.Filename, err)
	}

	s := report.Summary
	message := fmt.Sprintf("%d unique certificates successfully uploaded.", s.SuccessfullyInserted)
	if s.FailedToProcess > 0 {
		message += fmt.Sprintf(" %d rows were skipped due to errors (%d failed processing, %d duplicate Certificate No.).",
			s.FailedToProcess, s.ProcessingFailures, s.DBErrors)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":   true,
		"message":   message,
		"summary":   s,
		"rowErrors": report.RowErrors,
	})
}

func uploadError(c *fiber.Ctx, fileName string, err error) error {
	var missing *ingest.MissingColumnsError
	var noRows *ingest.NoValidRowsError
	switch {
	case errors.Is(err, ingest.ErrTooLarge):
		return middleware.JsonResponse(c, fiber.StatusRequestEntityTooLarge, false, "File size exceeds 10MB limit.", nil)
	case errors.Is(err, ingest.ErrUnsupportedType):
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false,
			fmt.Sprintf("Invalid file type: %s. Only .xlsx or .xls files are accepted.", fileName), nil)
	case errors.Is(err, ingest.ErrEmptySheet):
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Excel sheet is empty or only contains headers.", nil)
	case errors.As(err, &missing):
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false,
			fmt.Sprintf("Missing required columns: %s.", strings.Join(missing.Columns, ", ")), nil)
	case errors.As(err, &noRows):
		message := "No valid data rows found to insert."
		if noRows.ProcessingFailures > 0 {
			message += fmt.Sprintf(" %d rows failed initial processing/validation.", noRows.ProcessingFailures)
		}
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, message, nil)
	case ingest.IsValidation(err):
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Unable to read the spreadsheet. Please upload a valid .xlsx file.", nil)
	}
	log.Printf("Upload error (FATAL): %v", err)
	return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Server error during file processing or database operation.", nil)
}

// SendAdminNotification mails the administrator an approval request. When
// ADMIN_EMAIL is set the links only ever go to that address.
func (h *CertificateController) SendAdminNotification(c *fiber.Ctx) error {
	req := c.Locals(validators.LocalNotification).(*validators.NotificationRequest)

	if h.AdminEmail != "" && !strings.EqualFold(req.To, h.AdminEmail) {
		log.Printf("Admin notify refused for recipient %s (certificate %d)", req.To, req.CertificateID)
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Approval requests can only be sent to the administrator.", nil)
	}

	err := h.Dispatcher.RequestApproval(c.UserContext(), notify.Notification{
		To:            req.To,
		Subject:       req.Subject,
		Text:          req.Text,
		CertificateID: uint(req.CertificateID),
		CertificateNo: req.CertificateNo,
	})
	if err != nil {
		log.Printf("Admin notify error: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Request was not sent.", nil)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Request sent.", nil)
}

// ApproveRequest applies the decision carried by an emailed link and answers
// with a page that closes itself.
func (h *CertificateController) ApproveRequest(c *fiber.Ctx) error {
	req := c.Locals(validators.LocalApproval).(*validators.ApprovalRequest)

	if req.CertificateID == 0 {
		return renderPage(c, fiber.StatusBadRequest, failurePage("Missing certificate ID."))
	}
	action, err := approval.ParseAction(req.Action)
	if err != nil {
		return renderPage(c, fiber.StatusBadRequest, failurePage("Unknown action. Use approve or reject."))
	}
	if req.Token == "" {
		return renderPage(c, fiber.StatusBadRequest, failurePage("This approval link is invalid."))
	}

	err = h.Machine.Redeem(c.UserContext(), req.Token, req.CertificateID, action)
	switch {
	case err == nil:
		return renderPage(c, fiber.StatusOK, decisionPage(action == approval.ActionApprove))
	case errors.Is(err, approval.ErrTokenUsed):
		return renderPage(c, fiber.StatusGone, failurePage("This approval link was already used."))
	case errors.Is(err, approval.ErrTokenExpired):
		return renderPage(c, fiber.StatusGone, failurePage("This approval link has expired. Request a new one."))
	case errors.Is(err, approval.ErrTokenInvalid):
		return renderPage(c, fiber.StatusBadRequest, failurePage("This approval link is invalid."))
	case errors.Is(err, approval.ErrCertificateNotFound):
		return renderPage(c, fiber.StatusNotFound, failurePage("Certificate not found."))
	}
	log.Printf("Approval error for certificate %d: %v", req.CertificateID, err)
	return renderPage(c, fiber.StatusInternalServerError, failurePage("Database was not updated. Please try again."))
}

// DownloadCertificate renders the certificate PDF once it is unlocked.
func (h *CertificateController) DownloadCertificate(c *fiber.Ctx) error {
	id := c.Locals(validators.LocalCertID).(uint)
	tpl := c.Locals(validators.LocalTemplate).(artifact.Template)

	view, err := h.certificate(c, id)
	if view == nil {
		return err
	}
	if !view.IsApproved {
		return h.locked(c, view.Certificate, "Download ("+tpl.Label()+")")
	}

	art, err := h.Generator.Generate(c.UserContext(), view.Certificate, tpl)
	if err != nil {
		return generateError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, attachment(art.Filename))
	return c.Status(fiber.StatusOK).Send(art.Data)
}

// EmailCertificate renders the certificate PDF and mails it once it is unlocked.
func (h *CertificateController) EmailCertificate(c *fiber.Ctx) error {
	id := c.Locals(validators.LocalCertID).(uint)
	tpl := c.Locals(validators.LocalTemplate).(artifact.Template)
	req := c.Locals(validators.LocalEmail).(*validators.EmailRequest)

	view, err := h.certificate(c, id)
	if view == nil {
		return err
	}
	if !view.IsApproved {
		return h.locked(c, view.Certificate, "Email ("+tpl.Label()+")")
	}

	art, err := h.Generator.Generate(c.UserContext(), view.Certificate, tpl)
	if err != nil {
		return generateError(c, err)
	}
	if err := h.Dispatcher.SendArtifact(c.UserContext(), req.To, view.Certificate, art.Filename, art.Data); err != nil {
		log.Printf("Email error for certificate %s: %v", view.CertificateNo, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to send certificate email.", nil)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate sent to "+req.To+".", nil)
}

// BulkDownload zips the PDFs of several certificates. Every one of them must
// be unlocked; otherwise nothing is rendered.
func (h *CertificateController) BulkDownload(c *fiber.Ctx) error {
	ids := c.Locals(validators.LocalBulk).([]uint)
	tpl := c.Locals(validators.LocalTemplate).(artifact.Template)

	views, err := h.Lister.Views(c.UserContext(), ids)
	if err != nil {
		if errors.Is(err, listing.ErrNotFound) {
			return middleware.JsonResponse(c, fiber.StatusNotFound, false, "One or more certificates were not found.", nil)
		}
		log.Printf("Bulk fetch error: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Error fetching certificates.", nil)
	}

	var locked []string
	certs := make([]models.Certificate, 0, len(views))
	for _, v := range views {
		if !v.IsApproved {
			locked = append(locked, v.CertificateNo)
		}
		certs = append(certs, v.Certificate)
	}
	if len(locked) > 0 {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"locked":  true,
			"message": "Bulk actions require every selected certificate to be approved.",
			"data":    fiber.Map{"lockedCertificates": locked},
		})
	}

	arts, failures, err := h.Generator.GenerateBatch(c.UserContext(), certs, tpl)
	if err != nil {
		return generateError(c, err)
	}
	if len(arts) == 0 {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "No certificate could be generated.", nil)
	}

	var buf bytes.Buffer
	if err := artifact.WriteZip(&buf, arts); err != nil {
		log.Printf("Bulk zip error: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to build archive.", nil)
	}

	if len(failures) > 0 {
		failed := make([]string, len(failures))
		for i, f := range failures {
			failed[i] = f.CertificateNo
		}
		c.Set("X-Certificates-Failed", strings.Join(failed, ","))
	}
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, attachment(fmt.Sprintf("certificates_%s.zip", tpl.Label())))
	return c.Status(fiber.StatusOK).Send(buf.Bytes())
}

// Health reports whether the database answers.
func (h *CertificateController) Health(c *fiber.Ctx) error {
	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.UserContext())
	}
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusServiceUnavailable, false, "Database unavailable.", nil)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "ok", nil)
}

// certificate loads a view or writes the error response. A nil view means the
// response has been written and the returned error must be passed on.
func (h *CertificateController) certificate(c *fiber.Ctx, id uint) (*models.CertificateView, error) {
	view, err := h.Lister.Get(c.UserContext(), id)
	if err == nil {
		return view, nil
	}
	if errors.Is(err, listing.ErrNotFound) {
		return nil, middleware.JsonResponse(c, fiber.StatusNotFound, false, "Certificate not found.", nil)
	}
	log.Printf("Fetch error for certificate %d: %v", id, err)
	return nil, middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Error fetching certificate.", nil)
}

// locked answers a protected action on a locked certificate: the request row
// is ensured and the administrator is asked for approval.
func (h *CertificateController) locked(c *fiber.Ctx, cert models.Certificate, actionLabel string) error {
	if err := h.Dispatcher.RequestFor(c.UserContext(), h.AdminEmail, cert, actionLabel); err != nil {
		log.Printf("Approval request for certificate %s was not sent: %v", cert.CertificateNo, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "This certificate is locked and the approval request was not sent.", nil)
	}
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"success": false,
		"locked":  true,
		"message": lockedMessage,
	})
}

func generateError(c *fiber.Ctx, err error) error {
	var assetErr *artifact.AssetError
	if errors.As(err, &assetErr) {
		log.Printf("Certificate asset error: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Certificate template is unavailable.", nil)
	}
	log.Printf("Certificate render error: %v", err)
	return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to generate certificate.", nil)
}

func attachment(filename string) string {
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		strings.ReplaceAll(filename, `"`, ""), url.PathEscape(filename))
}
