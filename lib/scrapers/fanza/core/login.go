package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

const (
	loginPagePath    = "/my/-/login/"
	authenticatePath = "/service/login/password/authenticate"
	gatedProbePath   = "/dc/doujin/"
	ageGateMarker    = "年齢認証"
	defaultAgeAction = "/age_check/"
)

// Login drives the session from Anonymous to Authenticated: fetch the
// login form for its CSRF token, submit credentials, follow the
// success redirect by hand, then clear the age gate on the doujin
// floor if one appears. Any failure leaves the session in Failed,
// which is terminal; construct a fresh session to retry.
func (c *Client) Login(ctx context.Context, email, password string) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	if c.Session.State() != Anonymous {
		err := &AuthError{Reason: "login requires a fresh session, current state is " + c.Session.State().String()}
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad session state")
		return err
	}

	fail := func(message string, err error) error {
		c.Session.fail()
		span.RecordError(err)
		span.SetStatus(codes.Error, message)
		return err
	}

	res, err := c.Fetch(ctx, loginPagePath, FetchOptions{})
	if err != nil {
		return fail("failed to fetch login page", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err != nil {
		return fail("failed to parse login page", err)
	}

	token := doc.Find(`input[name="token"]`).AttrOr("value", "")
	if token == "" {
		return fail("missing csrf token", &AuthError{Reason: "csrf token not found on login page"})
	}
	c.Session.csrfToken = token
	c.Session.setState(TokenAcquired)

	res, err = c.Fetch(ctx, authenticatePath, FetchOptions{
		Method: "POST",
		Headers: map[string]string{
			"referer": c.BaseUrl.String() + loginPagePath,
			"origin":  c.BaseUrl.String(),
		},
		Form: map[string]string{
			"login_id":       email,
			"password":       password,
			"use_auto_login": "1",
			"i3_vwtp":        "pc",
			"token":          token,
			"recaptchaToken": "",
		},
	})
	if err != nil {
		return fail("credential submission failed", err)
	}
	c.Session.setState(CredentialsSubmitted)

	if !res.Redirect() {
		return fail("authentication rejected",
			&AuthError{Reason: fmt.Sprintf("authentication rejected: expected a redirect, got status %d", res.Status)})
	}
	location := res.Headers["location"]
	if location == "" {
		return fail("redirect without location",
			&AuthError{Reason: "authentication redirect carried no location header"})
	}
	c.Session.redirectURL = location
	c.Session.setState(Redirected)

	_, err = c.Fetch(ctx, c.resolve(location), FetchOptions{})
	if err != nil {
		return fail("failed to follow login redirect", err)
	}

	err = c.clearAgeGate(ctx)
	if err != nil {
		return fail("age gate failed", err)
	}

	c.Session.setState(Authenticated)
	return nil
}

// clearAgeGate probes the doujin floor and, when the age-confirmation
// interstitial shows up, posts the confirmation to the form's own
// action.
func (c *Client) clearAgeGate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:clearAgeGate")
	defer span.End()

	res, err := c.Fetch(ctx, gatedProbePath, FetchOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to probe gated page")
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse gated page")
		return err
	}

	title := doc.Find("title").Text()
	if !strings.Contains(title, ageGateMarker) {
		return nil
	}

	action := doc.Find("form").AttrOr("action", defaultAgeAction)
	_, err = c.Fetch(ctx, c.resolve(action), FetchOptions{
		Method: "POST",
		Form:   map[string]string{"agecheck": "1"},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit age confirmation")
		return &AuthError{Reason: "age confirmation rejected", Err: err}
	}
	c.Session.setState(AgeVerified)
	return nil
}
