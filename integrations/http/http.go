// Package http is a host.Host that reaches a remote host over HTTP, as served
// by host.NewHandler.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aponysus/hostcall/result"
)

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 4096

// Client invokes commands at BaseURL + "/invoke/{command}".
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Header     http.Header
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: http.DefaultClient}
}

// Invoke posts args as a JSON object and returns the reply body. Transport
// failures and non-2xx responses are returned as *StatusError.
func (c *Client) Invoke(ctx context.Context, command string, args map[string]any) ([]byte, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("hostcall/http: encode args: %w", err)
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + "/invoke/" + url.PathEscape(command)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &StatusError{Command: command, Err: err}
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &StatusError{Command: command, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		se := &StatusError{Command: command, Code: resp.StatusCode, Header: resp.Header}
		var env result.ErrorEnvelope
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			se.Reply = &env
		}
		return nil, se
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &StatusError{Command: command, Code: resp.StatusCode, Err: err}
	}
	return raw, nil
}

// StatusError is a failed HTTP exchange: either a transport error (Err set) or
// a non-2xx status (Code set).
type StatusError struct {
	Command string
	Code    int
	Header  http.Header
	Err     error

	// Reply is the error envelope the server sent, if it sent one.
	Reply *result.ErrorEnvelope
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hostcall/http: %s: %v", e.Command, e.Err)
	}
	if e.Reply != nil {
		return fmt.Sprintf("hostcall/http: %s: status %d: %s", e.Command, e.Code, e.Reply.Message)
	}
	return fmt.Sprintf("hostcall/http: %s: status %d", e.Command, e.Code)
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) StatusCode() int { return e.Code }

// Envelope describes the failure. The server's own envelope wins when present;
// transport errors are reported as network failures.
func (e *StatusError) Envelope() result.ErrorEnvelope {
	if e.Reply != nil {
		env := e.Reply.WithDefaults()
		if env.StatusCode == 0 {
			env.StatusCode = e.Code
		}
		return env
	}

	env := result.ErrorEnvelope{
		Message:     e.Error(),
		FullMessage: e.Error(),
		StatusCode:  e.Code,
	}
	switch {
	case e.Err != nil:
		env.Category = result.CategoryNetwork
		env.ErrorType = "RequestFailed"
		env.Code = result.CodeNetworkError
	case e.Code == http.StatusNotFound:
		env.Category = result.CategoryNotFound
		env.Code = result.CodeNotFound
	case e.Code == http.StatusRequestTimeout || e.Code == http.StatusGatewayTimeout:
		env.Category = result.CategoryNetwork
		env.ErrorType = "Timeout"
		env.Code = result.CodeTimeout
	case e.Code >= 500:
		env.Category = result.CategoryNetwork
		env.ErrorType = "ServerError"
		env.Code = result.CodeNetworkError
	}
	return env.WithDefaults()
}

// RetryAfter parses the Retry-After header of the response, if any.
func (e *StatusError) RetryAfter() (time.Duration, bool) {
	if e.Header == nil {
		return 0, false
	}
	s := e.Header.Get("Retry-After")
	if s == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}

	if t, err := http.ParseTime(s); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}
