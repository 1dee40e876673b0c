package httpapi

import (
	"context"
	"net/http"
)

// serverBaseCtx is cancelled when the process begins shutting down. Model
// loads observe it so a shutdown never waits on a registry lock.
var serverBaseCtx = context.Background()

// SetBaseContext sets the shutdown context; nil restores Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBaseCtx = ctx
}

// loadContext derives the context a model load runs under: the request
// context, cut short by server shutdown, bounded by the load timeout.
func loadContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(serverBaseCtx, cancel)
	release := func() {
		stop()
		cancel()
	}
	if loadTimeout <= 0 {
		return ctx, release
	}
	tctx, tcancel := context.WithTimeout(ctx, loadTimeout)
	return tctx, func() {
		tcancel()
		release()
	}
}
