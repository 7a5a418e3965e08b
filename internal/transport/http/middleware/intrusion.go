package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// IntrusionRecorder receives requests that look like vulnerability probes.
type IntrusionRecorder interface {
	RecordIntrusion(source string, at time.Time)
}

// probeMarkers are path fragments scanners try against hosting panels. None
// of them is served by this API.
var probeMarkers = []string{
	"../",
	"/.env",
	"/.git/",
	"/wp-login.php",
	"/wp-admin",
	"/xmlrpc.php",
	"/phpmyadmin",
	"/cgi-bin/",
	"/etc/passwd",
	"/vendor/phpunit",
	"/actuator/",
}

// IsProbe reports whether the request path matches a known scanner pattern.
// The path is checked raw and percent-decoded.
func IsProbe(path string) bool {
	candidates := []string{strings.ToLower(path)}
	if decoded, err := url.PathUnescape(path); err == nil && decoded != path {
		candidates = append(candidates, strings.ToLower(decoded))
	}
	for _, p := range candidates {
		for _, m := range probeMarkers {
			if strings.Contains(p, m) {
				return true
			}
		}
	}
	return false
}

// IntrusionWatch reports probe requests to recorder and answers them with
// 404 without reaching any handler.
func IntrusionWatch(recorder IntrusionRecorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IsProbe(string(c.Request().URI().PathOriginal())) {
			return c.Next()
		}
		if recorder != nil {
			recorder.RecordIntrusion(c.IP(), time.Now())
		}
		return c.SendStatus(fiber.StatusNotFound)
	}
}
