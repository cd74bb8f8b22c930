package controllers

import (
	"bytes"
	"html/template"

	"github.com/gofiber/fiber/v2"
)

type resultPage struct {
	Title      string
	Message    string
	Color      string
	Background string
	AutoClose  bool
}

var resultTemplate = template.Must(template.New("result").Parse(`<html>
  <head><title>{{.Title}}</title></head>
  <body style="background-color: {{.Background}}; display: flex; justify-content: center; align-items: center; height: 100vh; font-family: sans-serif;">
    <div style="text-align: center; padding: 40px; background: white; border-radius: 10px; box-shadow: 0 4px 6px rgba(0,0,0,0.1);">
      <h1 style="color: {{.Color}};">{{.Title}}</h1>
      <p>{{.Message}}</p>
      {{- if .AutoClose}}
      <p style="font-size: 12px; color: #888;">Closing window...</p>
      <script>setTimeout(() => window.close(), 1500);</script>
      {{- end}}
    </div>
  </body>
</html>`))

func renderPage(c *fiber.Ctx, status int, page resultPage) error {
	var buf bytes.Buffer
	if err := resultTemplate.Execute(&buf, page); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).Send(buf.Bytes())
}

func decisionPage(approved bool) resultPage {
	if approved {
		return resultPage{Title: "APPROVED", Message: "Certificate unlocked.", Color: "#16a34a", Background: "#f0fdf4", AutoClose: true}
	}
	return resultPage{Title: "REJECTED", Message: "Certificate locked.", Color: "#dc2626", Background: "#fef2f2", AutoClose: true}
}

func failurePage(message string) resultPage {
	return resultPage{Title: "Request not applied", Message: message, Color: "#b45309", Background: "#fffbeb"}
}
