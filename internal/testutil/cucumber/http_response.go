package cucumber

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
	"github.com/itchyny/gojq"
)

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^the response code should be (\d+)$`, s.theResponseCodeShouldBe)
		ctx.Step(`^the response should match json:$`, s.theResponseShouldMatchJSON)
		ctx.Step(`^the response should contain json:$`, s.theResponseShouldContainJSON)
		ctx.Step(`^the response should contain "([^"]*)"$`, s.theResponseShouldContain)
		ctx.Step(`^the response should not contain "([^"]*)"$`, s.theResponseShouldNotContain)
		ctx.Step(`^the response header "([^"]*)" should match "([^"]*)"$`, s.theResponseHeaderShouldMatch)
		ctx.Step(`^I store the "([^"]*)" selection from the response as \${([^}]*)}$`, s.iStoreTheSelectionFromTheResponseAs)
		ctx.Step(`^the "(.*)" selection from the response should match "([^"]*)"$`, s.theSelectionFromTheResponseShouldMatch)
		ctx.Step(`^the "([^"]*)" selection from the response should match json:$`, s.theSelectionFromTheResponseShouldMatchJSON)
		ctx.Step(`^\${([^}]*)} is not empty$`, s.variableIsNotEmpty)
		ctx.Step(`^"([^"]*)" should match "([^"]*)"$`, s.textShouldMatchText)
	})
}

func (s *TestScenario) theResponseCodeShouldBe(expected int) error {
	session := s.Session()
	if session.Resp == nil {
		return fmt.Errorf("no HTTP response available")
	}
	if actual := session.Resp.StatusCode; actual != expected {
		return fmt.Errorf("expected response code to be: %d, but actual is: %d, body: %s", expected, actual, string(session.RespBytes))
	}
	return nil
}

func (s *TestScenario) responseBody() (string, error) {
	session := s.Session()
	if len(session.RespBytes) == 0 {
		return "", fmt.Errorf("got an empty response from server, expected a json body")
	}
	return string(session.RespBytes), nil
}

func (s *TestScenario) theResponseShouldMatchJSON(expected *godog.DocString) error {
	body, err := s.responseBody()
	if err != nil {
		return err
	}
	return s.JSONMustMatch(body, expected.Content, true)
}

func (s *TestScenario) theResponseShouldContainJSON(expected *godog.DocString) error {
	body, err := s.responseBody()
	if err != nil {
		return err
	}
	return s.JSONMustContain(body, expected.Content, true)
}

func (s *TestScenario) theResponseShouldContain(expected string) error {
	body := string(s.Session().RespBytes)
	if !strings.Contains(body, expected) {
		return fmt.Errorf("expected response to contain '%s', but it does not. Response body: %s", expected, body)
	}
	return nil
}

func (s *TestScenario) theResponseShouldNotContain(unexpected string) error {
	body := string(s.Session().RespBytes)
	if strings.Contains(body, unexpected) {
		return fmt.Errorf("expected response not to contain '%s'. Response body: %s", unexpected, body)
	}
	return nil
}

func (s *TestScenario) theResponseHeaderShouldMatch(header, expected string) error {
	session := s.Session()
	if session.Resp == nil {
		return fmt.Errorf("no HTTP response available")
	}
	expanded, err := s.Expand(expected)
	if err != nil {
		return err
	}
	if actual := session.Resp.Header.Get(header); actual != expanded {
		return fmt.Errorf("response header '%s' does not match expected: %v, actual: %v", header, expanded, actual)
	}
	return nil
}

func (s *TestScenario) textShouldMatchText(actual, expected string) error {
	expected, err := s.Expand(expected)
	if err != nil {
		return err
	}
	actual, err = s.Expand(actual)
	if err != nil {
		return err
	}
	if expected != actual {
		return fmt.Errorf("actual does not match expected, diff:\n%s", unifiedDiff(expected, actual))
	}
	return nil
}

func (s *TestScenario) variableIsNotEmpty(name string) error {
	value, err := s.Resolve(name)
	if err != nil {
		return err
	}
	if value == nil || value == "" {
		return fmt.Errorf("variable ${%s} is empty", name)
	}
	return nil
}

// selectFromResponse runs a jq selector against the last response body.
func (s *TestScenario) selectFromResponse(selector string) (any, error) {
	doc, err := s.Session().RespJSON()
	if err != nil {
		return nil, err
	}
	query, err := gojq.Parse(selector)
	if err != nil {
		return nil, err
	}
	iter := query.Run(doc)
	next, found := iter.Next()
	if !found {
		return nil, fmt.Errorf("expected JSON does not have node that matches selector: %s", selector)
	}
	if err, ok := next.(error); ok {
		return nil, fmt.Errorf("selector %s: %w", selector, err)
	}
	return next, nil
}

func (s *TestScenario) iStoreTheSelectionFromTheResponseAs(selector, as string) error {
	value, err := s.selectFromResponse(selector)
	if err != nil {
		return err
	}
	s.Variables[as] = value
	return nil
}

func (s *TestScenario) theSelectionFromTheResponseShouldMatch(selector, expected string) error {
	actual, err := s.selectFromResponse(selector)
	if err != nil {
		return err
	}
	expected, err = s.Expand(expected)
	if err != nil {
		return err
	}
	actualStr := "null"
	if actual != nil {
		actualStr = fmt.Sprintf("%v", actual)
	}
	if actualStr != expected {
		return fmt.Errorf("selected JSON does not match. expected: %v, actual: %v", expected, actualStr)
	}
	return nil
}

func (s *TestScenario) theSelectionFromTheResponseShouldMatchJSON(selector string, expected *godog.DocString) error {
	actual, err := s.selectFromResponse(selector)
	if err != nil {
		return err
	}
	data, err := json.Marshal(actual)
	if err != nil {
		return err
	}
	return s.JSONMustMatch(string(data), expected.Content, true)
}
