package notify

import (
	"fmt"
	"html"
)

// HTML wrapper shared by every email
func emailTemplate(brand, title, bodyContent string) string {
	return fmt.Sprintf(`
	<!DOCTYPE html>
	<html>
	<head>
		<style>
			body { font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif; background-color: #F6F6F6; margin: 0; padding: 0; }
			.container { max-width: 600px; margin: 40px auto; background: #FFFFFF; border-radius: 8px; overflow: hidden; border: 1px solid #ddd; }
			.header { background-color: #1F2937; padding: 24px; text-align: center; }
			.header h1 { color: #FFFFFF; margin: 0; font-size: 20px; letter-spacing: 1px; }
			.content { padding: 30px; color: #111827; line-height: 1.6; }
			.content h2 { margin-top: 0; }
			pre { background: #F9F9F9; padding: 10px; white-space: pre-wrap; }
			.actions { text-align: center; margin-top: 30px; }
			.btn { display: inline-block; padding: 15px 30px; color: #FFFFFF; text-decoration: none; border-radius: 5px; font-weight: bold; margin: 0 10px; }
			.approve { background-color: #16A34A; }
			.reject { background-color: #DC2626; }
			.footer { background-color: #F6F6F6; padding: 16px; text-align: center; font-size: 12px; color: #666666; border-top: 1px solid #E0E0E0; }
		</style>
	</head>
	<body>
		<div class="container">
			<div class="header">
				<h1>%s</h1>
			</div>
			<div class="content">
				<h2>%s</h2>
				%s
			</div>
			<div class="footer">
				This message was sent automatically by %s.
			</div>
		</div>
	</body>
	</html>
	`, html.EscapeString(brand), html.EscapeString(title), bodyContent, html.EscapeString(brand))
}

func approvalBody(text, approveURL, rejectURL, expires string) string {
	return fmt.Sprintf(`
		<pre>%s</pre>
		<div class="actions">
			<a href="%s" class="btn approve">APPROVE</a>
			<a href="%s" class="btn reject">REJECT</a>
		</div>
		<p style="font-size: 12px; color: #888;">These links can be used once and expire %s.</p>
	`, html.EscapeString(text), html.EscapeString(approveURL), html.EscapeString(rejectURL), html.EscapeString(expires))
}

func artifactBody(name, certificateNo string) string {
	return fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>Please find attached your certificate <strong>%s</strong>.</p>
	`, html.EscapeString(name), html.EscapeString(certificateNo))
}
