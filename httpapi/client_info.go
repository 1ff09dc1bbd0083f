package httpapi

import (
	"net"
	"net/http"
	"strings"

	authcore "github.com/agilepm-dev/authcore"
)

// extractClientInfo derives the advisory request metadata the engine hashes
// into device fingerprints. Everything here is client-declared and
// spoofable; the engine treats it as a risk signal only.
func extractClientInfo(r *http.Request) authcore.ClientInfo {
	ua := r.Header.Get("User-Agent")
	return authcore.ClientInfo{
		IP:         clientIP(r),
		DeviceType: deviceTypeFromUA(ua),
		Browser:    browserFromUA(ua),
		OS:         osFromUA(ua),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "UNKNOWN"
}

func browserFromUA(ua string) string {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "edg/"):
		return "Edge"
	case strings.Contains(lower, "opr/"), strings.Contains(lower, "opera"):
		return "Opera"
	case strings.Contains(lower, "chrome/"):
		return "Chrome"
	case strings.Contains(lower, "safari/") && strings.Contains(lower, "version/"):
		return "Safari"
	case strings.Contains(lower, "firefox/"):
		return "Firefox"
	case ua == "":
		return "Unknown"
	default:
		return "Other"
	}
}

func osFromUA(ua string) string {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "windows"):
		return "Windows"
	case strings.Contains(lower, "android"):
		return "Android"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"):
		return "iOS"
	case strings.Contains(lower, "mac os"):
		return "macOS"
	case strings.Contains(lower, "linux"):
		return "Linux"
	case ua == "":
		return "Unknown"
	default:
		return "Other"
	}
}

func deviceTypeFromUA(ua string) string {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "mobile"), strings.Contains(lower, "iphone"), strings.Contains(lower, "android"):
		return "MOBILE"
	case strings.Contains(lower, "ipad"), strings.Contains(lower, "tablet"):
		return "TABLET"
	default:
		return "DESKTOP"
	}
}
