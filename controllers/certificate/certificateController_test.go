package controllers_test

import (
	"archive/zip"
	"bytes"
	"certvault/approval"
	"certvault/artifact"
	"certvault/artifact/testassets"
	controllers "certvault/controllers/certificate"
	"certvault/database"
	"certvault/ingest"
	"certvault/listing"
	"certvault/middleware"
	"certvault/models"
	"certvault/notify"
	certificateRoutes "certvault/routers/certificateRoutes"
	systemRoutes "certvault/routers/systemRoutes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const adminEmail = "admin@example.org"

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (r *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingMailer) messages() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.sent...)
}

type testEnv struct {
	app     *fiber.App
	db      *gorm.DB
	machine *approval.Machine
	mailer  *recordingMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	machine := approval.NewMachine(db, approval.NewSigner("test-secret", time.Hour), nil)
	mailer := &recordingMailer{}
	h := &controllers.CertificateController{
		DB:         db,
		Engine:     ingest.NewEngine(db, nil),
		Machine:    machine,
		Dispatcher: notify.NewDispatcher(machine, mailer, "http://certs.test", "Certificate Desk", nil),
		Generator:  artifact.NewGenerator(artifact.MapAssets(testassets.Files()), nil),
		Lister:     listing.NewLister(db),
		AdminEmail: adminEmail,
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    ingest.MaxUploadSize + 2<<20,
		ErrorHandler: middleware.ErrorHandler,
	})
	certificateRoutes.SetupCertificateRoutes(app, h)
	systemRoutes.SetupSystemRoutes(app, h, prometheus.NewRegistry())

	return &testEnv{app: app, db: db, machine: machine, mailer: mailer}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) get(t *testing.T, target string) *http.Response {
	return e.do(t, httptest.NewRequest(http.MethodGet, target, nil))
}

func (e *testEnv) postJSON(t *testing.T, target string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req)
}

func (e *testEnv) seed(t *testing.T, certs ...models.Certificate) []models.Certificate {
	t.Helper()
	require.NoError(t, e.db.Create(&certs).Error)
	return certs
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return data
}

func TestCreateCertificate(t *testing.T) {
	env := newTestEnv(t)
	valid := map[string]string{"certificateNo": "C-1", "name": "Jane", "hospital": "City", "doi": "01-02-2024"}

	resp := env.postJSON(t, "/api/certificates", valid)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "C-1", body["data"].(map[string]interface{})["certificateNo"])

	resp = env.postJSON(t, "/api/certificates", valid)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Creation failed: Certificate No. must be unique.", decode(t, resp)["message"])

	resp = env.postJSON(t, "/api/certificates", map[string]string{"certificateNo": "C-2", "name": "Jane"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, "Validation Error: Missing required fields.", body["message"])
	assert.Contains(t, body["errors"], "hospital")

	resp = env.postJSON(t, "/api/certificates", map[string]string{"certificateNo": "C-3", "name": "J", "hospital": "H", "doi": "2024-02-01"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Validation Error: DOI must be in DD-MM-YYYY format.", decode(t, resp)["message"])
}

func TestListCertificates(t *testing.T) {
	env := newTestEnv(t)
	certs := env.seed(t,
		models.Certificate{CertificateNo: "SSI-1", Name: "Jane", Hospital: "St. Mary Hospital", DOI: "01-01-2024"},
		models.Certificate{CertificateNo: "SSI-2", Name: "John", Hospital: "City Clinic", DOI: "02-01-2024"},
		models.Certificate{CertificateNo: "SSI-3", Name: "Mary", Hospital: "st. mary hospital", DOI: "03-01-2024"},
	)
	require.NoError(t, env.machine.Approve(context.Background(), certs[2].ID))

	resp := env.get(t, "/api/certificates?q="+url.QueryEscape("St. Mary")+"&limit=1")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decode(t, resp)

	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 1, body["limit"])
	assert.EqualValues(t, 2, body["totalPages"])
	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	first := data[0].(map[string]interface{})
	assert.Equal(t, "SSI-3", first["certificateNo"])
	assert.Equal(t, true, first["isApproved"])
	assert.Len(t, body["filters"].(map[string]interface{})["hospitals"], 2)

	resp = env.get(t, "/api/certificates?all=true")
	body = decode(t, resp)
	assert.Len(t, body["data"], 3)
	assert.EqualValues(t, 3, body["limit"])
}

func TestListCertificatesBounds(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, models.Certificate{CertificateNo: "C-1"})

	body := decode(t, env.get(t, "/api/certificates?limit=5000"))
	assert.EqualValues(t, listing.MaxLimit, body["limit"])

	resp := env.get(t, fmt.Sprintf("/api/certificates?page=%d&limit=10", math.MaxInt/10+2))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Page is out of range!", decode(t, resp)["message"])
}

func TestExportCertificates(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t,
		models.Certificate{CertificateNo: "SSI-1", Name: "Jane", Hospital: "City"},
		models.Certificate{CertificateNo: "SSI-2", Name: "John", Hospital: "Town"},
	)

	resp := env.get(t, "/api/certificates/export?hospital=Town")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(readBody(t, resp)))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Certificates")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "SSI-2", rows[1][1])
	assert.Equal(t, "Locked", rows[1][5])

	resp = env.get(t, "/api/certificates/export?format=csv")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func workbook(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &rows[i]))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func uploadRequest(t *testing.T, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

const xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func TestUploadCertificates(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, models.Certificate{CertificateNo: "C-1", Name: "Existing"})

	data := workbook(t,
		[]interface{}{"Certificate No.", "Name", "Hospital", "DOI"},
		[]interface{}{"C-1", "Dup", "City", "01-01-2024"},
		[]interface{}{"C-2", "Jane", "City", 44927},
		[]interface{}{"", "No Number", "City", "01-01-2024"},
		[]interface{}{"C-3", "John", "Town", "31st August 2023"},
	)
	resp := env.do(t, uploadRequest(t, "certs.xlsx", xlsxType, data))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decode(t, resp)

	summary := body["summary"].(map[string]interface{})
	assert.EqualValues(t, 4, summary["totalRows"])
	assert.EqualValues(t, 2, summary["successfullyInserted"])
	assert.EqualValues(t, 2, summary["failedToProcess"])
	assert.EqualValues(t, 1, summary["processingFailures"])
	assert.EqualValues(t, 1, summary["dbErrors"])
	assert.True(t, strings.HasPrefix(body["message"].(string), "2 unique certificates successfully uploaded."))

	var stored models.Certificate
	require.NoError(t, env.db.Where("certificate_no = ?", "C-2").Take(&stored).Error)
	assert.Equal(t, "01-01-2023", stored.DOI)
}

func TestUploadRejections(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, uploadRequest(t, "notes.txt", "text/plain", []byte("hello")))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid file type: notes.txt. Only .xlsx or .xls files are accepted.", decode(t, resp)["message"])

	data := workbook(t, []interface{}{"Certificate No.", "Name"}, []interface{}{"C-1", "Jane"})
	resp = env.do(t, uploadRequest(t, "certs.xlsx", xlsxType, data))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing required columns: Hospital, DOI.", decode(t, resp)["message"])

	resp = env.do(t, uploadRequest(t, "big.xlsx", xlsxType, bytes.Repeat([]byte("x"), ingest.MaxUploadSize+1)))
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	resp = env.do(t, req)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No file uploaded.", decode(t, resp)["message"])
}

var approveLinkRe = regexp.MustCompile(`Approve: (\S+)`)

func approveLink(t *testing.T, msg notify.Message) string {
	t.Helper()
	m := approveLinkRe.FindStringSubmatch(msg.Text)
	require.Len(t, m, 2)
	u, err := url.Parse(m[1])
	require.NoError(t, err)
	return u.RequestURI()
}

func TestLockedDownloadRequestsApprovalThenUnlocks(t *testing.T) {
	env := newTestEnv(t)
	cert := env.seed(t, models.Certificate{CertificateNo: "SSI-9", Name: "jane doe", Hospital: "city hospital", DOI: "05-05-2024"})[0]
	target := fmt.Sprintf("/api/certificates/%d/pdf?template=v2", cert.ID)

	resp := env.get(t, target)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, true, body["locked"])
	assert.Equal(t, false, body["success"])

	var count int64
	env.db.Model(&models.ApprovalRequest{}).Where("certificate_id = ?", cert.ID).Count(&count)
	assert.EqualValues(t, 1, count)

	msgs := env.mailer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{adminEmail}, msgs[0].To)
	assert.Equal(t, "User Request: Download (Training) - SSI-9", msgs[0].Subject)

	// a second attempt sends another request but keeps the single row
	resp = env.get(t, target)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	env.db.Model(&models.ApprovalRequest{}).Where("certificate_id = ?", cert.ID).Count(&count)
	assert.EqualValues(t, 1, count)
	assert.Len(t, env.mailer.messages(), 2)

	link := approveLink(t, msgs[0])
	resp = env.get(t, link)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	page := string(readBody(t, resp))
	assert.Contains(t, page, "APPROVED")
	assert.Contains(t, page, "window.close()")

	resp = env.get(t, link)
	assert.Equal(t, fiber.StatusGone, resp.StatusCode)

	resp = env.get(t, target)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "Jane Doe_City Hospital.pdf")
	assert.True(t, bytes.HasPrefix(readBody(t, resp), []byte("%PDF-")))
}

func TestDownloadErrors(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, fiber.StatusNotFound, env.get(t, "/api/certificates/42/pdf").StatusCode)
	assert.Equal(t, fiber.StatusBadRequest, env.get(t, "/api/certificates/abc/pdf").StatusCode)

	cert := env.seed(t, models.Certificate{CertificateNo: "C-1"})[0]
	resp := env.get(t, fmt.Sprintf("/api/certificates/%d/pdf?template=v9", cert.ID))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestEmailCertificate(t *testing.T) {
	env := newTestEnv(t)
	cert := env.seed(t, models.Certificate{CertificateNo: "C-1", Name: "Jane", Hospital: "City"})[0]
	target := fmt.Sprintf("/api/certificates/%d/email", cert.ID)

	resp := env.postJSON(t, target, map[string]string{"to": "jane@example.org"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Len(t, env.mailer.messages(), 1)
	assert.Equal(t, "User Request: Email (Proctorship) - C-1", env.mailer.messages()[0].Subject)

	require.NoError(t, env.machine.Approve(context.Background(), cert.ID))

	resp = env.postJSON(t, target, map[string]string{"to": "jane@example.org"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	msgs := env.mailer.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"jane@example.org"}, msgs[1].To)
	require.Len(t, msgs[1].Attachments, 1)
	assert.Equal(t, "Jane_City.pdf", msgs[1].Attachments[0].Filename)

	resp = env.postJSON(t, target, map[string]string{"to": "not-an-email"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestBulkDownload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	certs := env.seed(t,
		models.Certificate{CertificateNo: "C-1", Name: "Jane", Hospital: "City"},
		models.Certificate{CertificateNo: "C-2", Name: "John", Hospital: "Town"},
	)
	require.NoError(t, env.machine.Approve(ctx, certs[0].ID))
	ids := []uint{certs[0].ID, certs[1].ID}

	resp := env.postJSON(t, "/api/certificates/pdf/bulk", map[string]interface{}{"ids": ids})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, []interface{}{"C-2"}, body["data"].(map[string]interface{})["lockedCertificates"])
	assert.Empty(t, env.mailer.messages())

	require.NoError(t, env.machine.Approve(ctx, certs[1].ID))
	resp = env.postJSON(t, "/api/certificates/pdf/bulk", map[string]interface{}{"ids": ids, "template": "training"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))

	data := readBody(t, resp)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"Jane_City.pdf", "John_Town.pdf"}, names)

	resp = env.postJSON(t, "/api/certificates/pdf/bulk", map[string]interface{}{"ids": []uint{certs[0].ID, 99}})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = env.postJSON(t, "/api/certificates/pdf/bulk", map[string]interface{}{"ids": []uint{}})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSendAdminNotification(t *testing.T) {
	env := newTestEnv(t)
	cert := env.seed(t, models.Certificate{CertificateNo: "C-1"})[0]

	resp := env.postJSON(t, "/api/send-admin-notification", map[string]interface{}{"certificateId": cert.ID})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = env.postJSON(t, "/api/send-admin-notification", map[string]interface{}{
		"to":            adminEmail,
		"subject":       "Need a download",
		"text":          "please unlock",
		"certificateId": fmt.Sprint(cert.ID),
		"certificateNo": "C-1",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Request sent.", decode(t, resp)["message"])

	msgs := env.mailer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Need a download", msgs[0].Subject)

	state, err := env.machine.StateOf(context.Background(), cert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateLocked, state)
}

func TestSendAdminNotificationOnlyMailsAdmin(t *testing.T) {
	env := newTestEnv(t)
	cert := env.seed(t, models.Certificate{CertificateNo: "C-1", Name: "jane", Hospital: "city"})[0]

	resp := env.postJSON(t, "/api/send-admin-notification", map[string]interface{}{
		"to":            "someone@elsewhere.test",
		"certificateId": cert.ID,
		"certificateNo": "C-1",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Approval requests can only be sent to the administrator.", decode(t, resp)["message"])
	assert.Empty(t, env.mailer.messages())

	var count int64
	env.db.Model(&models.ApprovalRequest{}).Where("certificate_id = ?", cert.ID).Count(&count)
	assert.Zero(t, count)

	// recipient comparison ignores case
	resp = env.postJSON(t, "/api/send-admin-notification", map[string]interface{}{
		"to":            strings.ToUpper(adminEmail),
		"certificateId": cert.ID,
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	msgs := env.mailer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{strings.ToUpper(adminEmail)}, msgs[0].To)
}

func TestApproveRequestRejectsBadLinks(t *testing.T) {
	env := newTestEnv(t)
	cert := env.seed(t, models.Certificate{CertificateNo: "C-1"})[0]

	resp := env.get(t, "/api/approve-request?action=approve")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp = env.get(t, fmt.Sprintf("/api/approve-request?certId=%d&action=approve", cert.ID))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = env.get(t, fmt.Sprintf("/api/approve-request?certId=%d&action=approve&token=forged", cert.ID))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = env.get(t, fmt.Sprintf("/api/approve-request?certId=%d&action=maybe&token=x", cert.ID))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	unlocked, err := env.machine.Unlocked(context.Background(), cert.ID)
	require.NoError(t, err)
	assert.False(t, unlocked)
}

func TestRejectLinkLocksAgain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cert := env.seed(t, models.Certificate{CertificateNo: "C-1"})[0]
	require.NoError(t, env.machine.Approve(ctx, cert.ID))

	links, err := env.machine.IssueLinks(ctx, cert.ID)
	require.NoError(t, err)
	resp := env.get(t, fmt.Sprintf("/api/approve-request?certId=%d&action=reject&token=%s", cert.ID, url.QueryEscape(links.Reject)))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(readBody(t, resp)), "REJECTED")

	unlocked, err := env.machine.Unlocked(ctx, cert.ID)
	require.NoError(t, err)
	assert.False(t, unlocked)
}

func TestSystemRoutes(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, fiber.StatusOK, env.get(t, "/healthz").StatusCode)
	assert.Equal(t, fiber.StatusOK, env.get(t, "/metrics").StatusCode)
}
