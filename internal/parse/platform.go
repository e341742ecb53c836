package parse

import (
	"fmt"
	"regexp"
	"strings"

	"dream-push-backend/internal/model"
)

var (
	iosRe     = regexp.MustCompile(`(?i)^(ios|ipados|iphone\s*os|iphone|ipad|ipod)\b`)
	androidRe = regexp.MustCompile(`(?i)^android\b`)
	webRe     = regexp.MustCompile(`(?i)^(web|browser|pwa)\b`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

// Platform maps a host OS or platform string ("Android 14", "iPhone OS 17_2",
// "ios", "web") to the platform recorded on a device token.
func Platform(raw string) (model.Platform, error) {
	s := strings.TrimSpace(raw)
	// Collapse runs of whitespace so "iPhone   OS" still matches.
	s = spaceRe.ReplaceAllString(s, " ")

	switch {
	case s == "":
		return "", fmt.Errorf("empty platform")
	case iosRe.MatchString(s):
		return model.PlatformIOS, nil
	case androidRe.MatchString(s):
		return model.PlatformAndroid, nil
	case webRe.MatchString(s):
		return model.PlatformWeb, nil
	}
	return "", fmt.Errorf("unable to parse platform from %q", raw)
}
