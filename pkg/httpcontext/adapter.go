package httpcontext

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	appLogger "github.com/fastygo/taskpilot/pkg/logger"
)

// Key represents a context value key exported for reuse.
type Key string

const (
	KeyRemoteAddr Key = "remote_addr"
	KeyUserAgent  Key = "user_agent"
	KeyCaller     Key = "caller"
)

// maxRequestIDLen bounds client supplied X-Request-ID values; longer ones are replaced.
const maxRequestIDLen = 128

// CallerFunc extracts the authenticated caller from a request, or "".
type CallerFunc func(ctx *fasthttp.RequestCtx) string

// Option customizes an Adapter.
type Option func(*Adapter)

// WithCaller makes Attach copy the authenticated caller into the derived context.
func WithCaller(fn CallerFunc) Option {
	return func(a *Adapter) { a.caller = fn }
}

// Adapter converts fasthttp.RequestCtx into a stdlib context with deadlines and metadata.
type Adapter struct {
	timeout time.Duration
	caller  CallerFunc
}

// NewAdapter constructs a new Adapter using the provided timeout.
func NewAdapter(timeout time.Duration, opts ...Option) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	a := &Adapter{timeout: timeout}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Attach creates a context with timeout derived from the adapter and enriches it with request metadata.
func (a *Adapter) Attach(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	stdCtx, cancel := context.WithTimeout(context.Background(), a.timeout)

	reqID := requestID(ctx)
	stdCtx = appLogger.ContextWithRequestID(stdCtx, reqID)
	ctx.Response.Header.Set("X-Request-ID", reqID)

	if remoteAddr := ctx.RemoteAddr(); remoteAddr != nil {
		stdCtx = context.WithValue(stdCtx, KeyRemoteAddr, remoteAddr.String())
	}
	if ua := string(ctx.Request.Header.UserAgent()); ua != "" {
		stdCtx = context.WithValue(stdCtx, KeyUserAgent, ua)
	}
	if a.caller != nil {
		if caller := a.caller(ctx); caller != "" {
			stdCtx = context.WithValue(stdCtx, KeyCaller, caller)
		}
	}

	return stdCtx, cancel
}

// Caller returns the caller stored by Attach, or "".
func Caller(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	caller, _ := ctx.Value(KeyCaller).(string)
	return caller
}

func requestID(ctx *fasthttp.RequestCtx) string {
	if ctx == nil {
		return uuid.NewString()
	}
	header := strings.TrimSpace(string(ctx.Request.Header.Peek("X-Request-ID")))
	if header == "" || len(header) > maxRequestIDLen {
		return uuid.NewString()
	}
	return header
}
