package notify

import "strings"

// ResolveBaseURL picks the public address used in emailed links: an explicit
// public URL unless it points at localhost, then a platform-provided host,
// then the local server.
func ResolveBaseURL(publicURL, platformHost, fallbackPlatformHost, port string) string {
	if u := strings.TrimSpace(publicURL); u != "" && !strings.Contains(u, "localhost") {
		return strings.TrimRight(u, "/")
	}
	for _, host := range []string{platformHost, fallbackPlatformHost} {
		if host = strings.TrimSpace(host); host != "" {
			if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
				return strings.TrimRight(host, "/")
			}
			return "https://" + strings.TrimRight(host, "/")
		}
	}
	if port == "" {
		port = "3000"
	}
	return "http://localhost:" + port
}
