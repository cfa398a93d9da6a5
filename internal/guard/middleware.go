package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/learnexa/learnexa/internal/auth"
	"github.com/learnexa/learnexa/internal/locale"
	"github.com/learnexa/learnexa/internal/shared"
	"github.com/learnexa/learnexa/internal/view"
)

// DecisionRecorder counts guard outcomes per route.
type DecisionRecorder interface {
	RecordGuardDecision(route, state string)
}

// Guard enforces rules on HTTP routes.
type Guard struct {
	logger     *slog.Logger
	templates  *view.Engine
	settleWait time.Duration
	metrics    DecisionRecorder
	keepAlive  time.Duration
}

// New constructs a Guard. metrics may be nil.
func New(logger *slog.Logger, templates *view.Engine, settleWait time.Duration, metrics DecisionRecorder) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{logger: logger, templates: templates, settleWait: settleWait, metrics: metrics, keepAlive: 15 * time.Second}
}

type loadingData struct {
	Route string
}

// Require admits requests allowed by rule. While the session store is
// still resolving after the settle wait, a neutral loading page is served
// that re-checks through the event stream.
func (g *Guard) Require(rule Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := auth.FromContext(r.Context())
			if store == nil {
				g.logger.Error("session store missing from context")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), g.settleWait)
			snap, _ := store.WaitSettled(ctx)
			cancel()

			d := Evaluate(rule, snap)
			g.record(rule, d)
			switch d.State {
			case Allowed:
				next.ServeHTTP(w, r)
			case Denied:
				shared.AddFlash(r.Context(), shared.FlashError, d.NoticeKey)
				http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
			default:
				w.Header().Set("Cache-Control", "no-store")
				data := view.TemplateData{Title: "common.loading", Data: loadingData{Route: rule.Name}}
				if err := g.templates.Render(w, r, http.StatusOK, "pages/loading.html", data); err != nil {
					g.logger.Error("render loading", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}
		})
	}
}

func (g *Guard) record(rule Rule, d Decision) {
	if g.metrics != nil {
		g.metrics.RecordGuardDecision(rule.Name, string(d.State))
	}
}

type redirectEvent struct {
	Location string `json:"location"`
	Notice   string `json:"notice"`
}

// Events streams decisions for the rule named by the route query
// parameter as server-sent events. A denial is sent as a redirect event,
// after which the stream ends.
func (g *Guard) Events(w http.ResponseWriter, r *http.Request) {
	rule, ok := RuleByName(r.URL.Query().Get("route"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	store := auth.FromContext(r.Context())
	if store == nil {
		g.logger.Error("session store missing from context")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	decisions := make(chan Decision, 16)
	stop := Watch(store, rule, func(d Decision) {
		select {
		case decisions <- d:
		case <-r.Context().Done():
		}
	})
	defer stop()

	ticker := time.NewTicker(g.keepAlive)
	defer ticker.Stop()
	lang := locale.FromContext(r.Context())

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		case d := <-decisions:
			g.record(rule, d)
			if d.State != Denied {
				fmt.Fprintf(w, "event: %s\ndata: {}\n\n", d.State)
				flusher.Flush()
				continue
			}
			notice := d.NoticeKey
			if lang != nil {
				notice = lang.T(d.NoticeKey)
			}
			payload, err := json.Marshal(redirectEvent{Location: d.Redirect, Notice: notice})
			if err != nil {
				g.logger.Error("encode guard event", slog.Any("error", err))
				return
			}
			fmt.Fprintf(w, "event: redirect\ndata: %s\n\n", payload)
			flusher.Flush()
			return
		}
	}
}
