package client

import (
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kitbuilder587/genclient/internal/domain"
	"github.com/kitbuilder587/genclient/internal/quota"
)

// Classification is the policy verdict for one failed remote answer.
type Classification struct {
	Kind          domain.OutcomeKind
	Scope         quota.Scope
	RetryAfter    time.Duration
	HasRetryAfter bool
	Reason        string
}

var (
	// "retryDelay":"34s" из тела RESOURCE_EXHAUSTED, либо
	// "Please retry in 26.33s" / "(retry after 120s)"
	retryDelayRe = regexp.MustCompile(`(?i)retrydelay"?\s*[:=]\s*"?([0-9.]+)\s*(ms|s|m|h)?`)
	retryInRe    = regexp.MustCompile(`(?i)retry\s+(?:in|after)\s+([0-9.]+)\s*(ms|s|m|h)?`)

	dailyScopeRe = regexp.MustCompile(`(?i)per[\s_]?day|daily`)
)

// Classify maps a raw (status, message) failure into the fixed outcome
// taxonomy. Unknown errors fail closed as Fatal: silently retrying
// something we do not understand is how quota gets burned for nothing.
func Classify(status int, message string) Classification {
	lower := strings.ToLower(message)

	switch {
	case status == http.StatusTooManyRequests || strings.Contains(message, "RESOURCE_EXHAUSTED") ||
		strings.Contains(lower, "quota exceeded") || strings.Contains(lower, "rate limit"):
		retryAfter, has := parseRetryAfter(message)
		return Classification{
			Kind:          domain.KindQuotaExceeded,
			Scope:         parseScope(message),
			RetryAfter:    retryAfter,
			HasRetryAfter: has,
			Reason:        message,
		}

	case status == http.StatusNotFound || strings.Contains(message, "NOT_FOUND") ||
		strings.Contains(lower, "not found") || strings.Contains(lower, "is not supported"):
		return Classification{Kind: domain.KindModelUnavailable, Reason: message}

	case status == 0 || status >= http.StatusInternalServerError:
		return Classification{Kind: domain.KindRetryable, Reason: message}

	case status >= http.StatusBadRequest:
		// сюда попадают и 401/403: отозванный ключ лечится оператором,
		// а не ротацией
		return Classification{Kind: domain.KindFatal, Reason: message}

	default:
		return Classification{Kind: domain.KindFatal, Reason: message}
	}
}

// parseRetryAfter digs the server-suggested wait out of the message text.
// Transports fold structured hints (Retry-After header, SDK retryDelay)
// into the message, so this is the single parsing point.
func parseRetryAfter(message string) (time.Duration, bool) {
	for _, re := range []*regexp.Regexp{retryDelayRe, retryInRe} {
		m := re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil || value < 0 {
			continue
		}

		unit := time.Second
		switch strings.ToLower(m[2]) {
		case "ms":
			unit = time.Millisecond
		case "m":
			unit = time.Minute
		case "h":
			unit = time.Hour
		}
		return time.Duration(math.Round(value * float64(unit))), true
	}
	return 0, false
}

func parseScope(message string) quota.Scope {
	if dailyScopeRe.MatchString(message) {
		return quota.ScopeLong
	}
	return quota.ScopeShort
}
