package service

import (
	"regexp"
	"strings"

	"github.com/faultline/faultline/internal/domain"
)

const maxStringLength = 2000

var (
	controlCharsRe = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	htmlTagRe      = regexp.MustCompile(`<[^>]*>`)
	cardRe         = regexp.MustCompile(`(?:\d[ -]?){12,18}\d`)
	ssnRe          = regexp.MustCompile(`\b(\d{3})[- ]?(\d{2})[- ]?(\d{4})\b`)
	assignmentRe   = regexp.MustCompile(`(?i)(password|passwd|pwd|secret|api[_-]?key|token)\s*[=:]\s*\S+`)
	bearerRe       = regexp.MustCompile(`(?i)(bearer)\s+\S+`)
	genericKeyRe   = regexp.MustCompile(`(?i)\b(sk|pk|api|key|token)([-_]?)([A-Za-z0-9]{8,})\b`)
	emailRe        = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe        = regexp.MustCompile(`\+?\d{1,3}[- .]?\(?\d{2,4}\)?[- .]?\d{3,4}[- .]?\d{3,4}`)
	ipv4Re         = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// Sanitizer strips unsafe content and masks secrets in inbound events.
// Sanitizing an already sanitized value is a fixed point.
type Sanitizer struct{}

// NewSanitizer creates a new sanitizer
func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// SanitizeEvent returns a structurally identical event with every string
// scrubbed per the project policy. It also records whether the optional
// top-level metadata and userContext fields were present on the input.
func (s *Sanitizer) SanitizeEvent(event *domain.ErrorEvent, policy domain.ScrubPolicy) *domain.ErrorEvent {
	out := &domain.ErrorEvent{
		Message:        s.SanitizeString(event.Message, policy),
		Environment:    s.SanitizeString(event.Environment, policy),
		Timestamp:      event.Timestamp,
		HasMetadata:    event.Metadata != nil,
		HasUserContext: event.UserContext != nil,
	}

	if event.StackTrace != nil {
		out.StackTrace = make([]domain.StackFrame, len(event.StackTrace))
		for i, frame := range event.StackTrace {
			out.StackTrace[i] = domain.StackFrame{
				File:     s.SanitizeString(frame.File, policy),
				Line:     frame.Line,
				Column:   frame.Column,
				Function: s.SanitizeString(frame.Function, policy),
				InApp:    frame.InApp,
			}
		}
	}

	if event.Metadata != nil {
		out.Metadata = s.sanitizeMap(event.Metadata, policy)
	}
	if event.UserContext != nil {
		out.UserContext = s.sanitizeMap(event.UserContext, policy)
	}
	if event.Context != nil {
		out.Context = s.sanitizeMap(event.Context, policy)
	}
	if event.Request != nil {
		out.Request = s.sanitizeMap(event.Request, policy)
	}

	return out
}

// SanitizeString applies every scrubbing rule to a single string
func (s *Sanitizer) SanitizeString(value string, policy domain.ScrubPolicy) string {
	value = controlCharsRe.ReplaceAllString(value, "")
	value = htmlTagRe.ReplaceAllString(value, "")
	value = cardRe.ReplaceAllString(value, "[REDACTED:CARD]")
	value = ssnRe.ReplaceAllString(value, "${1}-**-${3}")
	value = assignmentRe.ReplaceAllString(value, "${1}=[REDACTED]")
	value = bearerRe.ReplaceAllString(value, "${1} [REDACTED]")
	value = genericKeyRe.ReplaceAllStringFunc(value, maskKeyBody)

	if policy.RemoveEmails {
		value = emailRe.ReplaceAllString(value, "[REDACTED:EMAIL]")
	}
	if policy.RemovePhones {
		value = phoneRe.ReplaceAllString(value, "[REDACTED:PHONE]")
	}
	if policy.RemoveIPs {
		value = ipv4Re.ReplaceAllString(value, "[REDACTED:IP]")
	}

	return clampString(value)
}

// maskKeyBody keeps the key prefix and the last two body characters,
// replacing the body interior with asterisks.
func maskKeyBody(match string) string {
	groups := genericKeyRe.FindStringSubmatch(match)
	if groups == nil {
		return match
	}
	prefix, sep, body := groups[1], groups[2], groups[3]
	masked := strings.Repeat("*", len(body)-2) + body[len(body)-2:]
	return prefix + sep + masked
}

func clampString(value string) string {
	runes := []rune(value)
	if len(runes) <= maxStringLength {
		return value
	}
	return string(runes[:maxStringLength]) + "…"
}

func (s *Sanitizer) sanitizeMap(m map[string]any, policy domain.ScrubPolicy) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = s.sanitizeValue(v, policy)
	}
	return out
}

// sanitizeValue recurses through strings, arrays and mappings; booleans and
// numbers pass through unchanged.
func (s *Sanitizer) sanitizeValue(v any, policy domain.ScrubPolicy) any {
	switch val := v.(type) {
	case string:
		return s.SanitizeString(val, policy)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = s.sanitizeValue(item, policy)
		}
		return out
	case map[string]any:
		return s.sanitizeMap(val, policy)
	default:
		return v
	}
}
