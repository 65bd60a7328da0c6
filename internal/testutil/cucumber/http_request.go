package cucumber

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cucumber/godog"
)

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^I (GET|POST|PUT|DELETE) path "([^"]*)"$`, s.sendHTTPRequest)
		ctx.Step(`^I (GET|POST|PUT|DELETE) path "([^"]*)" with json body:$`, s.SendHTTPRequestWithJSONBody)
		ctx.Step(`^I (GET|POST|PUT|DELETE) path "([^"]*)" without authentication$`, s.sendUnauthenticated)
		ctx.Step(`^I set the "([^"]*)" header to "([^"]*)"$`, s.iSetTheHeaderTo)
		ctx.Step(`^I wait up to "([^"]*)" seconds for a GET on path "([^"]*)" response "([^"]*)" selection to match "([^"]*)"$`, s.iWaitForSelectionToMatch)
	})
}

func (s *TestScenario) sendHTTPRequest(method, path string) error {
	return s.SendHTTPRequestWithJSONBody(method, path, nil)
}

// SendHTTPRequestWithJSONBody expands variables in the path and body and sends
// the request as the current user. The response is stored in the session.
func (s *TestScenario) SendHTTPRequestWithJSONBody(method, path string, jsonTxt *godog.DocString) error {
	session := s.Session()

	body := &bytes.Buffer{}
	if jsonTxt != nil {
		expanded, err := s.Expand(jsonTxt.Content)
		if err != nil {
			return err
		}
		body.WriteString(expanded)
	}

	expandedPath, err := s.Expand(path)
	if err != nil {
		return err
	}
	fullURL := s.Suite.APIURL + expandedPath
	if u, err := url.Parse(expandedPath); err == nil && u.Scheme != "" {
		fullURL = expandedPath
	}

	session.Resp = nil
	session.SetRespBytes(nil)

	req, err := http.NewRequestWithContext(context.Background(), method, fullURL, body)
	if err != nil {
		return err
	}

	// Session headers apply to the next request only.
	req.Header = session.Header
	session.Header = http.Header{}
	if req.Header.Get(headerAuthToken) == "" && session.TestUser != nil && session.TestUser.Token != "" {
		req.Header.Set(headerAuthToken, session.TestUser.Token)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := session.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	session.Resp = resp
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	session.SetRespBytes(data)
	return nil
}

const headerAuthToken = "auth-token"

func (s *TestScenario) sendUnauthenticated(method, path string) error {
	session := s.Session()
	saved := session.TestUser
	session.TestUser = nil
	defer func() { session.TestUser = saved }()
	return s.sendHTTPRequest(method, path)
}

func (s *TestScenario) iSetTheHeaderTo(name, value string) error {
	expanded, err := s.Expand(value)
	if err != nil {
		return err
	}
	s.Session().Header.Set(name, expanded)
	return nil
}

func (s *TestScenario) iWaitForSelectionToMatch(timeout float64, path, selection, expected string) error {
	deadline := time.Now().Add(time.Duration(timeout * float64(time.Second)))
	var lastErr error
	for {
		lastErr = s.sendHTTPRequest("GET", path)
		if lastErr == nil {
			lastErr = s.theSelectionFromTheResponseShouldMatch(selection, expected)
			if lastErr == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("condition not met after %.f seconds: %w", timeout, lastErr)
		}
		time.Sleep(100 * time.Millisecond)
	}
}
