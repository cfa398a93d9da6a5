package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/learnexa/learnexa/internal/shared"
	"github.com/learnexa/learnexa/internal/view"
)

// AttemptRecorder counts sign-in attempts by method and outcome.
type AttemptRecorder interface {
	RecordAuthAttempt(method, outcome string)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	metrics        AttemptRecorder
	settleWait     time.Duration
}

// NewHandler constructs a Handler instance. metrics may be nil.
func NewHandler(logger *slog.Logger, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, metrics AttemptRecorder, settleWait time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		metrics:        metrics,
		settleWait:     settleWait,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showAuth)
	r.Post("/email", h.handleEmail)
	r.Post("/phone", h.handlePhone)
	r.Post("/phone/verify", h.handleVerify)
	r.Post("/phone/reset", h.handlePhoneReset)
	r.Post("/logout", h.handleLogout)
}

type authForm struct {
	Email    string
	FullName string
	Phone    string
}

type authPageData struct {
	Tab   string
	Mode  EmailMode
	Step  PhoneStep
	Phone string
	Form  authForm
	// Error and Field are set after a failed submission; Error is a
	// catalog key.
	Error string
	Field string
}

func pageDataFor(flow Flow) authPageData {
	switch f := flow.(type) {
	case PhoneFlow:
		return authPageData{Tab: "phone", Mode: ModeSignIn, Step: f.Step, Phone: f.Phone}
	case EmailFlow:
		return authPageData{Tab: "email", Mode: f.Mode, Step: StepRequest}
	default:
		return authPageData{Tab: "email", Mode: ModeSignIn, Step: StepRequest}
	}
}

func (h *Handler) signedIn(r *http.Request) bool {
	store := FromContext(r.Context())
	if store == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.settleWait)
	defer cancel()
	snap, ok := store.WaitSettled(ctx)
	return ok && snap.SignedIn()
}

func (h *Handler) showAuth(w http.ResponseWriter, r *http.Request) {
	if h.signedIn(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	flow := LoadFlow(sess)
	query := r.URL.Query()
	switch query.Get("tab") {
	case "phone":
		if _, ok := flow.(PhoneFlow); !ok {
			flow = PhoneFlow{Step: StepRequest}
		}
	case "email":
		if _, ok := flow.(EmailFlow); !ok {
			flow = EmailFlow{Mode: ModeSignIn}
		}
	}
	switch EmailMode(query.Get("mode")) {
	case ModeSignIn:
		flow = EmailFlow{Mode: ModeSignIn}
	case ModeSignUp:
		flow = EmailFlow{Mode: ModeSignUp}
	}
	SaveFlow(sess, flow)
	h.render(w, r, http.StatusOK, pageDataFor(flow))
}

func (h *Handler) handleEmail(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	store := h.store(w, r)
	if store == nil {
		return
	}
	sess := shared.SessionFromContext(r.Context())
	mode := ModeSignIn
	if EmailMode(r.PostFormValue("mode")) == ModeSignUp {
		mode = ModeSignUp
	}
	form := authForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		FullName: strings.TrimSpace(r.PostFormValue("full_name")),
		Phone:    strings.TrimSpace(r.PostFormValue("phone")),
	}
	password := r.PostFormValue("password")
	SaveFlow(sess, EmailFlow{Mode: mode})

	if mode == ModeSignUp {
		err := store.SignUp(r.Context(), SignUpInput{Email: form.Email, Password: password, FullName: form.FullName, Phone: form.Phone})
		h.record("signup", err)
		if err != nil {
			h.fail(w, r, EmailFlow{Mode: mode}, form, err)
			return
		}
		SaveFlow(sess, EmailFlow{Mode: ModeSignIn})
		shared.AddFlash(r.Context(), shared.FlashSuccess, "auth.signup.success")
		http.Redirect(w, r, "/auth", http.StatusSeeOther)
		return
	}

	err := store.SignIn(r.Context(), form.Email, password)
	h.record("password", err)
	if err != nil {
		h.fail(w, r, EmailFlow{Mode: mode}, form, err)
		return
	}
	h.completeSignIn(w, r, "auth.signin.success")
}

func (h *Handler) handlePhone(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	store := h.store(w, r)
	if store == nil {
		return
	}
	phone := strings.TrimSpace(r.PostFormValue("phone"))
	err := store.SignInWithPhone(r.Context(), phone)
	h.record("otp_send", err)
	if err != nil {
		h.fail(w, r, PhoneFlow{Step: StepRequest}, authForm{Phone: phone}, err)
		return
	}
	SaveFlow(shared.SessionFromContext(r.Context()), PhoneFlow{Step: StepVerify, Phone: phone})
	shared.AddFlash(r.Context(), shared.FlashSuccess, "auth.otp.sent")
	http.Redirect(w, r, "/auth", http.StatusSeeOther)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	store := h.store(w, r)
	if store == nil {
		return
	}
	sess := shared.SessionFromContext(r.Context())
	flow, ok := LoadFlow(sess).(PhoneFlow)
	if !ok || flow.Step != StepVerify {
		SaveFlow(sess, PhoneFlow{Step: StepRequest})
		http.Redirect(w, r, "/auth", http.StatusSeeOther)
		return
	}
	code := strings.TrimSpace(r.PostFormValue("code"))
	err := store.VerifyOTP(r.Context(), flow.Phone, code)
	h.record("otp_verify", err)
	if err != nil {
		h.fail(w, r, flow, authForm{Phone: flow.Phone}, err)
		return
	}
	h.completeSignIn(w, r, "auth.verify.success")
}

func (h *Handler) handlePhoneReset(w http.ResponseWriter, r *http.Request) {
	SaveFlow(shared.SessionFromContext(r.Context()), PhoneFlow{Step: StepRequest})
	http.Redirect(w, r, "/auth?tab=phone", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	store := h.store(w, r)
	if store == nil {
		return
	}
	if err := store.SignOut(r.Context()); err != nil {
		h.logger.Warn("sign out", slog.Any("error", err))
		shared.AddFlash(r.Context(), shared.FlashError, MessageKey(err))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.rotate(r)
	shared.AddFlash(r.Context(), shared.FlashSuccess, "auth.signout.success")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) completeSignIn(w http.ResponseWriter, r *http.Request, notice string) {
	ResetFlow(shared.SessionFromContext(r.Context()))
	h.rotate(r)
	shared.AddFlash(r.Context(), shared.FlashSuccess, notice)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// rotate issues a fresh session ID and CSRF token after the identity
// changed.
func (h *Handler) rotate(r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return
	}
	if h.sessionManager != nil {
		h.sessionManager.Regenerate(sess)
	}
	if h.csrfManager != nil {
		if _, err := h.csrfManager.Rotate(r.Context(), sess); err != nil {
			h.logger.Warn("rotate csrf token", slog.Any("error", err))
		}
	}
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) *Store {
	store := FromContext(r.Context())
	if store == nil {
		h.logger.Error("session store missing from context")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
	return store
}

func (h *Handler) record(method string, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "success"
	var verr *ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		outcome = "invalid_input"
	default:
		outcome = string(ReasonOf(err))
		if outcome == "" {
			outcome = string(ReasonGeneric)
		}
	}
	h.metrics.RecordAuthAttempt(method, outcome)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, flow Flow, form authForm, err error) {
	data := pageDataFor(flow)
	data.Form = form
	data.Error = MessageKey(err)
	status := http.StatusUnprocessableEntity
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		data.Field = verr.Field
		status = http.StatusBadRequest
	case ReasonOf(err) == ReasonRateLimited:
		status = http.StatusTooManyRequests
	case ReasonOf(err) == ReasonGeneric:
		h.logger.Error("identity provider", slog.Any("error", err))
	}
	h.render(w, r, status, data)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data authPageData) {
	title := "auth.signin.title"
	if data.Tab == "email" && data.Mode == ModeSignUp {
		title = "auth.signup.title"
	}
	if err := h.templates.Render(w, r, status, "pages/auth.html", view.TemplateData{Title: title, Data: data}); err != nil {
		h.logger.Error("render auth", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
