package auth

import (
	"strings"

	"github.com/learnexa/learnexa/internal/shared"
)

// flowSessionKey holds the encoded auth page state in the cookie session.
const flowSessionKey = "auth_flow"

// Flow is the state of the auth page: either EmailFlow or PhoneFlow.
type Flow interface {
	encode() string
}

// EmailMode selects between the sign-in and sign-up forms.
type EmailMode string

const (
	ModeSignIn EmailMode = "signin"
	ModeSignUp EmailMode = "signup"
)

// EmailFlow shows the email form in Mode.
type EmailFlow struct {
	Mode EmailMode
}

func (f EmailFlow) encode() string {
	return "email:" + string(f.Mode)
}

// PhoneStep is the position in the phone challenge.
type PhoneStep string

const (
	StepRequest PhoneStep = "request"
	StepVerify  PhoneStep = "verify"
)

// PhoneFlow shows the phone form. Phone is set once a code was sent.
type PhoneFlow struct {
	Step  PhoneStep
	Phone string
}

func (f PhoneFlow) encode() string {
	if f.Step == StepVerify {
		return "phone:verify:" + f.Phone
	}
	return "phone:request"
}

// DefaultFlow is the sign-in email form.
var DefaultFlow Flow = EmailFlow{Mode: ModeSignIn}

// DecodeFlow parses an encoded flow. Anything unrecognised yields
// DefaultFlow.
func DecodeFlow(raw string) Flow {
	switch {
	case raw == "email:signin":
		return EmailFlow{Mode: ModeSignIn}
	case raw == "email:signup":
		return EmailFlow{Mode: ModeSignUp}
	case raw == "phone:request":
		return PhoneFlow{Step: StepRequest}
	case strings.HasPrefix(raw, "phone:verify:"):
		phone := strings.TrimPrefix(raw, "phone:verify:")
		if phone == "" {
			return PhoneFlow{Step: StepRequest}
		}
		return PhoneFlow{Step: StepVerify, Phone: phone}
	default:
		return DefaultFlow
	}
}

// EncodeFlow serialises f for storage.
func EncodeFlow(f Flow) string {
	if f == nil {
		return DefaultFlow.encode()
	}
	return f.encode()
}

// LoadFlow reads the flow stored on sess.
func LoadFlow(sess *shared.Session) Flow {
	if sess == nil {
		return DefaultFlow
	}
	return DecodeFlow(sess.Get(flowSessionKey))
}

// SaveFlow stores f on sess.
func SaveFlow(sess *shared.Session, f Flow) {
	if sess == nil {
		return
	}
	sess.Set(flowSessionKey, EncodeFlow(f))
}

// ResetFlow forgets the stored flow.
func ResetFlow(sess *shared.Session) {
	if sess == nil {
		return
	}
	sess.Delete(flowSessionKey)
}
