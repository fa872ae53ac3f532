// Package classic talks to the legacy ADS Classic system: an HTTP client with
// a hard timeout for the outbound calls, and a pure interpreter that turns the
// legacy login responses into one of a fixed set of outcomes.
package classic

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Response is the raw material the interpreter works on.
type Response struct {
	StatusCode int
	Body       []byte
}

// Outcome is the classification of a login response. Exactly one outcome is
// produced per response; timeouts never reach the interpreter (the client
// reports them as errors before a Response exists).
type Outcome int

const (
	// OutcomeSuccess: logged in, cookie present.
	OutcomeSuccess Outcome = iota
	// OutcomeInvalidCredentials: the legacy system rejected the password.
	OutcomeInvalidCredentials
	// OutcomeUnknownAccount: the legacy system flagged the account as missing.
	OutcomeUnknownAccount
	// OutcomeNoSession: logged in but no cookie field in the body.
	OutcomeNoSession
	// OutcomeEmailMismatch: body email absent or different from the supplied one.
	OutcomeEmailMismatch
	// OutcomeServerError: status >= 500; Status and Body carry the remote detail.
	OutcomeServerError
	// OutcomeMalformed: the body could not be parsed as a legacy login response.
	OutcomeMalformed
)

// Classification is the interpreter's verdict plus whatever fields back it up.
// Cookie is set only for OutcomeSuccess. Status and Body are set for
// OutcomeServerError and OutcomeMalformed so the caller can forward diagnostics.
type Classification struct {
	Outcome Outcome
	Email   string
	Cookie  string
	Status  int
	Body    string
}

// Body markers the legacy login endpoint is known to emit.
const (
	msgLoggedIn        = "LOGGED_IN"
	msgAccountNotFound = "ACCOUNT_NOTFOUND"
	msgUnknownUser     = "UNKNOWN_USER"
)

// loginBody is the ad-hoc shape the legacy login endpoint returns. Every field
// we consume is validated for presence; nothing beyond this struct escapes the
// interpreter.
type loginBody struct {
	Message  string      `json:"message"`
	LoggedIn *truthyFlag `json:"loggedin"`
	Email    *string     `json:"email"`
	Cookie   *string     `json:"cookie"`
}

// truthyFlag decodes the legacy loggedin field, which arrives as a number from
// some mirrors and a numeric string from others.
type truthyFlag bool

func (f *truthyFlag) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return err
	}
	*f = n != 0
	return nil
}

// Interpret classifies a raw login response against the email the caller
// supplied. It is a pure function: no network, no persistence, no logging.
//
// Rule order matters and is fixed:
//  1. status >= 500 keeps the remote status and body (OutcomeServerError)
//  2. an unparseable body is OutcomeMalformed, never defaulted
//  3. the email check runs before any success classification, so a mismatched
//     "successful" login is still rejected; failure bodies commonly omit the
//     email field, so absence alone is not a mismatch
//  4. logged-in with a cookie is success; logged-in without one is OutcomeNoSession
//  5. everything else is a credentials failure, split into unknown-account when
//     the legacy marker says so
func Interpret(resp *Response, suppliedEmail string) Classification {
	if resp.StatusCode >= 500 {
		return Classification{
			Outcome: OutcomeServerError,
			Status:  resp.StatusCode,
			Body:    string(resp.Body),
		}
	}

	var body loginBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return Classification{
			Outcome: OutcomeMalformed,
			Status:  resp.StatusCode,
			Body:    string(resp.Body),
		}
	}

	if body.Email != nil && *body.Email != suppliedEmail {
		return Classification{Outcome: OutcomeEmailMismatch}
	}

	if resp.StatusCode == 200 && body.Message == msgLoggedIn &&
		body.LoggedIn != nil && bool(*body.LoggedIn) {
		// A success we cannot tie back to the supplied email is untrustworthy.
		if body.Email == nil {
			return Classification{Outcome: OutcomeEmailMismatch}
		}
		if body.Cookie == nil || *body.Cookie == "" {
			return Classification{Outcome: OutcomeNoSession, Email: *body.Email}
		}
		return Classification{
			Outcome: OutcomeSuccess,
			Email:   *body.Email,
			Cookie:  *body.Cookie,
		}
	}

	if body.Message == msgAccountNotFound || body.Message == msgUnknownUser {
		return Classification{Outcome: OutcomeUnknownAccount}
	}
	return Classification{Outcome: OutcomeInvalidCredentials}
}
