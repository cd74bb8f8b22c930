package certificateValidator

import (
	"bytes"
	"certvault/artifact"
	"certvault/listing"
	"certvault/middleware"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Locals keys set by the validators below.
const (
	LocalCertificate  = "validatedCertificate"
	LocalQuery        = "listQuery"
	LocalNotification = "validatedNotification"
	LocalCertID       = "certificateID"
	LocalTemplate     = "template"
	LocalEmail        = "validatedEmail"
	LocalBulk         = "validatedBulk"
	LocalApproval     = "validatedApproval"
	LocalUpload       = "uploadFile"
)

// MaxBulkIDs bounds a single bulk download.
const MaxBulkIDs = 200

var doiPattern = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("doi", func(fl validator.FieldLevel) bool {
		return doiPattern.MatchString(fl.Field().String())
	})
	return v
}

// CertificateID accepts an id sent either as a JSON number or a numeric string.
type CertificateID uint

func (id *CertificateID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid certificate id %q", data)
	}
	*id = CertificateID(n)
	return nil
}

type CreateCertificateRequest struct {
	CertificateNo string `json:"certificateNo" validate:"required"`
	Name          string `json:"name" validate:"required"`
	Hospital      string `json:"hospital" validate:"required"`
	DOI           string `json:"doi" validate:"required,doi"`
}

type NotificationRequest struct {
	To            string        `json:"to" validate:"required,email"`
	Subject       string        `json:"subject"`
	Text          string        `json:"text"`
	CertificateID CertificateID `json:"certificateId" validate:"required"`
	CertificateNo string        `json:"certificateNo"`
}

type EmailRequest struct {
	To string `json:"to" validate:"required,email"`
}

type BulkRequest struct {
	IDs      []CertificateID `json:"ids" validate:"required,min=1,max=200,dive,required"`
	Template string          `json:"template"`
}

type ApprovalRequest struct {
	CertificateID uint
	Action        string
	Token         string
}

// fieldErrors turns validator errors into per-field messages. The summary is
// "Missing required fields." whenever any required field is absent.
func fieldErrors(err error) (string, map[string]string) {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error(), out
	}
	summary := ""
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			out[field] = field + " is required!"
			summary = "Missing required fields."
		case "doi":
			out[field] = "DOI must be in DD-MM-YYYY format."
		case "email":
			out[field] = "Please enter a valid email address!"
		case "min", "max":
			out[field] = fmt.Sprintf("%s must contain between 1 and %d entries!", field, MaxBulkIDs)
		default:
			out[field] = field + " is invalid!"
		}
		if summary == "" {
			summary = out[field]
		}
	}
	return summary, out
}

func trimAll(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}

// CreateCertificate validates a single certificate record.
func CreateCertificate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(CreateCertificateRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		trimAll(&reqData.CertificateNo, &reqData.Name, &reqData.Hospital, &reqData.DOI)

		if err := validate.Struct(reqData); err != nil {
			summary, errs := fieldErrors(err)
			return middleware.ValidationErrorResponse(c, summary, errs)
		}

		c.Locals(LocalCertificate, reqData)
		return c.Next()
	}
}

// ListCertificates reads paging, search and filter parameters.
func ListCertificates() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := listing.Query{
			Page:     c.QueryInt("page", listing.DefaultPage),
			Limit:    c.QueryInt("limit", listing.DefaultLimit),
			Search:   c.Query("q"),
			Hospital: c.Query("hospital"),
			All:      c.Query("all") == "true",
		}.Normalize()
		if err := q.Validate(); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Page is out of range!", nil)
		}
		c.Locals(LocalQuery, q)
		return c.Next()
	}
}

// ExportCertificates is ListCertificates without pagination.
func ExportCertificates() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if format := c.Query("format", "xlsx"); format != "xlsx" {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Unsupported export format!", nil)
		}
		q := listing.Query{
			Search:   c.Query("q"),
			Hospital: c.Query("hospital"),
			All:      true,
		}
		c.Locals(LocalQuery, q.Normalize())
		return c.Next()
	}
}

// SendNotification validates an approval request email.
func SendNotification() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(NotificationRequest)
		if err := json.Unmarshal(c.Body(), reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		trimAll(&reqData.To, &reqData.CertificateNo)

		if err := validate.Struct(reqData); err != nil {
			summary, errs := fieldErrors(err)
			return middleware.ValidationErrorResponse(c, summary, errs)
		}

		c.Locals(LocalNotification, reqData)
		return c.Next()
	}
}

// CertificateParam parses the :id route parameter.
func CertificateParam() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(strings.TrimSpace(c.Params("id")), 10, 64)
		if err != nil || id == 0 {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid certificate ID!", nil)
		}
		c.Locals(LocalCertID, uint(id))
		return c.Next()
	}
}

// DownloadCertificate validates the template selector of a PDF download.
func DownloadCertificate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tpl, err := artifact.ParseTemplate(c.Query("template"))
		if err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Unknown template! Use v1 or v2.", nil)
		}
		c.Locals(LocalTemplate, tpl)
		return c.Next()
	}
}

// EmailCertificate validates the recipient and template of an emailed PDF.
func EmailCertificate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(EmailRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		trimAll(&reqData.To)
		if err := validate.Struct(reqData); err != nil {
			summary, errs := fieldErrors(err)
			return middleware.ValidationErrorResponse(c, summary, errs)
		}

		tpl, err := artifact.ParseTemplate(c.Query("template"))
		if err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Unknown template! Use v1 or v2.", nil)
		}

		c.Locals(LocalEmail, reqData)
		c.Locals(LocalTemplate, tpl)
		return c.Next()
	}
}

// BulkDownload validates a list of certificate ids for a zip download.
func BulkDownload() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(BulkRequest)
		if err := json.Unmarshal(c.Body(), reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		if err := validate.Struct(reqData); err != nil {
			summary, errs := fieldErrors(err)
			return middleware.ValidationErrorResponse(c, summary, errs)
		}
		tpl, err := artifact.ParseTemplate(reqData.Template)
		if err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Unknown template! Use v1 or v2.", nil)
		}

		c.Locals(LocalBulk, dedupe(reqData.IDs))
		c.Locals(LocalTemplate, tpl)
		return c.Next()
	}
}

func dedupe(ids []CertificateID) []uint {
	seen := make(map[CertificateID]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, uint(id))
		}
	}
	return out
}

// ApproveRequest reads the query of an emailed approval link. Failures are
// answered by the handler as an HTML page, so only parsing happens here.
func ApproveRequest() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := &ApprovalRequest{
			Action: strings.ToLower(strings.TrimSpace(c.Query("action"))),
			Token:  strings.TrimSpace(c.Query("token")),
		}
		if id, err := strconv.ParseUint(strings.TrimSpace(c.Query("certId")), 10, 64); err == nil {
			reqData.CertificateID = uint(id)
		}
		c.Locals(LocalApproval, reqData)
		return c.Next()
	}
}

// UploadSpreadsheet requires a multipart "file" field.
func UploadSpreadsheet() fiber.Handler {
	return func(c *fiber.Ctx) error {
		file, err := c.FormFile("file")
		if err != nil || file == nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "No file uploaded.", nil)
		}
		c.Locals(LocalUpload, file)
		return c.Next()
	}
}
