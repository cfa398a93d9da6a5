// Package guard decides whether the current session may see a protected
// page and keeps that decision up to date while the page is open.
package guard

import (
	"sync"

	"github.com/learnexa/learnexa/internal/auth"
)

// State is the outcome of evaluating a rule.
type State string

const (
	// Pending means the session store has not settled; nothing protected
	// may be shown and no redirect may happen yet.
	Pending State = "pending"
	Allowed State = "allowed"
	Denied  State = "denied"
)

// Rule protects one route.
type Rule struct {
	Name      string
	Allow     func(auth.Snapshot) bool
	Redirect  string
	NoticeKey string
}

// AdminRule admits administrators only. Everyone else, signed in or not,
// is sent to the home page.
var AdminRule = Rule{
	Name:      "admin",
	Allow:     auth.Snapshot.IsAdmin,
	Redirect:  "/",
	NoticeKey: "guard.unauthorized",
}

// ProfileRule admits any signed-in user.
var ProfileRule = Rule{
	Name:      "profile",
	Allow:     auth.Snapshot.SignedIn,
	Redirect:  "/auth",
	NoticeKey: "guard.signinRequired",
}

var rules = map[string]Rule{
	AdminRule.Name:   AdminRule,
	ProfileRule.Name: ProfileRule,
}

// RuleByName returns the rule registered under name.
func RuleByName(name string) (Rule, bool) {
	rule, ok := rules[name]
	return rule, ok
}

// Decision is the result of Evaluate. Redirect and NoticeKey are set only
// when State is Denied.
type Decision struct {
	State     State
	Redirect  string
	NoticeKey string
}

// Evaluate applies rule to snap.
func Evaluate(rule Rule, snap auth.Snapshot) Decision {
	if !snap.Settled() {
		return Decision{State: Pending}
	}
	if rule.Allow != nil && rule.Allow(snap) {
		return Decision{State: Allowed}
	}
	return Decision{State: Denied, Redirect: rule.Redirect, NoticeKey: rule.NoticeKey}
}

// Watch calls fn with the current decision and again whenever the
// decision changes, including an allowed page being demoted to denied. It
// returns a function that stops watching.
func Watch(store *auth.Store, rule Rule, fn func(Decision)) func() {
	var (
		mu   sync.Mutex
		seen bool
		last State
	)
	emit := func() {
		mu.Lock()
		defer mu.Unlock()
		d := Evaluate(rule, store.Snapshot())
		if seen && d.State == last {
			return
		}
		seen, last = true, d.State
		fn(d)
	}
	cancel := store.Subscribe(func(auth.Snapshot) { emit() })
	emit()
	return cancel
}
