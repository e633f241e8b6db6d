package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/baxromumarov/job-scraper/internal/antidetect"
	"github.com/baxromumarov/job-scraper/internal/httpx"
)

type ErrorKind string

const (
	ErrNetwork   ErrorKind = "network"
	ErrTimeout   ErrorKind = "timeout"
	ErrRateLimit ErrorKind = "rate_limit"
	ErrBlocked   ErrorKind = "blocked"
	ErrParse     ErrorKind = "parse"
	ErrConfig    ErrorKind = "config"
	ErrUnknown   ErrorKind = "unknown"
)

// Error is a classified strategy failure.
type Error struct {
	Kind     ErrorKind
	Strategy StrategyKind
	Status   int
	Err      error
	// Final marks failures that must not be retried in a later run even
	// when the kind would allow it.
	Final bool
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Strategy != "" {
		b.WriteString(" (")
		b.WriteString(string(e.Strategy))
		b.WriteString(")")
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status %d", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Abandons reports whether the engine should stop trying further strategies
// for the target.
func (e *Error) Abandons() bool {
	return e.Kind == ErrBlocked || e.Kind == ErrRateLimit
}

// Retryable reports whether the same target may be tried again in a later run.
func (e *Error) Retryable() bool {
	if e.Final {
		return false
	}
	switch e.Kind {
	case ErrBlocked, ErrParse, ErrConfig:
		return false
	}
	return true
}

func NewError(kind ErrorKind, strategy StrategyKind, err error) *Error {
	return &Error{Kind: kind, Strategy: strategy, Err: err}
}

func configError(strategy StrategyKind, format string, args ...any) *Error {
	return NewError(ErrConfig, strategy, fmt.Errorf(format, args...))
}

func parseError(strategy StrategyKind, err error) *Error {
	return NewError(ErrParse, strategy, err)
}

// Classify maps any error to a *Error. Typed errors are preferred; message
// sniffing only applies when the transport gave nothing structured.
func Classify(err error, strategy StrategyKind) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		if se.Strategy == "" {
			cp := *se
			cp.Strategy = strategy
			return &cp
		}
		return se
	}

	out := &Error{Strategy: strategy, Err: err, Kind: ErrUnknown}

	var fe *httpx.FetchError
	if errors.As(err, &fe) {
		out.Status = fe.Status
		switch {
		case fe.Status == http.StatusTooManyRequests:
			out.Kind = ErrRateLimit
			return out
		case antidetect.IsBotDetected(fe.Status, fe.Header):
			out.Kind = ErrBlocked
			return out
		case errors.Is(fe.Err, httpx.ErrRobotsDisallowed):
			out.Kind = ErrBlocked
			return out
		case fe.Status >= 400:
			out.Kind = ErrNetwork
			return out
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		out.Kind = ErrTimeout
		return out
	case errors.Is(err, httpx.ErrDecode):
		out.Kind = ErrParse
		return out
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		out.Kind = ErrParse
		return out
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			out.Kind = ErrTimeout
		} else {
			out.Kind = ErrNetwork
		}
		return out
	}

	out.Kind = classifyMessage(err.Error())
	return out
}

func classifyMessage(msg string) ErrorKind {
	msg = strings.ToLower(msg)
	switch {
	case containsAny(msg, "429", "too many requests", "rate limit"):
		return ErrRateLimit
	case containsAny(msg, "403", "forbidden", "captcha", "access denied", "bot detected"):
		return ErrBlocked
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ErrTimeout
	case containsAny(msg, "parse failed", "decode failed", "unmarshal", "invalid character", "unexpected end of json"):
		return ErrParse
	case containsAny(msg, "connection refused", "connection reset", "no such host", "eof", "network"):
		return ErrNetwork
	}
	return ErrUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
