// Copyright (c) 2024 The virt-joiner Authors.
// SPDX-License-Identifier: Apache-2.0

package ipa

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// apiVersion is sent with every command so the server does not log a
// version-mismatch warning per call.
const apiVersion = "2.251"

// Session is an authenticated connection to a single IPA server.
type Session interface {
	// Exec invokes the named command with positional arguments and options.
	// Commands the session implements natively are dispatched directly;
	// everything else falls back to a generic JSON-RPC call carrying the
	// same command name and argument shape.
	Exec(ctx context.Context, command string, args []string, options map[string]any) (*Result, error)
}

// Result carries the payload of a single IPA command.
type Result struct {
	// Attrs is the inner result object, if the command returned one.
	Attrs map[string]any

	// Value is the primary key the command acted on.
	Value string

	// Summary is the server's human-readable outcome, if any.
	Summary string
}

// CommandError is an error reported by the IPA API itself, as opposed to a
// transport failure.
type CommandError struct {
	Code    int
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// notFoundCode is the IPA NotFound error code.
const notFoundCode = 4001

// IsNotFound reports whether err means the referenced entry does not exist.
func IsNotFound(err error) bool {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == notFoundCode
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not found")
}

type directCommand func(ctx context.Context, args []string, options map[string]any) (*Result, error)

// rpcSession talks to one IPA server over the JSON-RPC session endpoint,
// carrying the session cookie obtained at login.
type rpcSession struct {
	host string
	base string
	http *http.Client

	// direct holds the commands this session exposes as first-class calls.
	// Exec falls back to the generic call for anything not listed here.
	direct map[string]directCommand
}

func newSession(host string, verifySSL bool) *rpcSession {
	jar, _ := cookiejar.New(nil)
	s := &rpcSession{
		host: host,
		base: "https://" + host + "/ipa",
		http: &http.Client{
			Jar: jar,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: !verifySSL}, //nolint:gosec
			},
		},
	}
	s.direct = map[string]directCommand{
		"host_add":  s.hostAdd,
		"host_mod":  s.hostMod,
		"host_del":  s.hostDel,
		"host_show": s.hostShow,
	}
	return s
}

// login authenticates with the forms-based endpoint; the resulting session
// cookie is held by the client's jar.
func (s *rpcSession) login(ctx context.Context, user, pass string) error {
	form := url.Values{
		"user":     {user},
		"password": {pass},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.base+"/session/login_password", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", s.base)
	req.Header.Set("Accept", "text/plain")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("login rejected with status %q", resp.Status)
	}
	return nil
}

func (s *rpcSession) Exec(ctx context.Context, command string, args []string, options map[string]any) (*Result, error) {
	if direct, ok := s.direct[command]; ok {
		return direct(ctx, args, options)
	}
	return s.call(ctx, command, args, options)
}

func (s *rpcSession) hostAdd(ctx context.Context, args []string, options map[string]any) (*Result, error) {
	options = withDefault(options, "force", true)
	return s.call(ctx, "host_add", args, options)
}

func (s *rpcSession) hostMod(ctx context.Context, args []string, options map[string]any) (*Result, error) {
	return s.call(ctx, "host_mod", args, options)
}

func (s *rpcSession) hostDel(ctx context.Context, args []string, options map[string]any) (*Result, error) {
	return s.call(ctx, "host_del", args, options)
}

func (s *rpcSession) hostShow(ctx context.Context, args []string, options map[string]any) (*Result, error) {
	// "all" pulls in the computed attributes, has_keytab among them.
	options = withDefault(options, "all", true)
	return s.call(ctx, "host_show", args, options)
}

func withDefault(options map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(options)+1)
	for k, v := range options {
		out[k] = v
	}
	if _, ok := out[key]; !ok {
		out[key] = value
	}
	return out
}

type rpcRequest struct {
	Method string `json:"method"`
	Params [2]any `json:"params"`
}

type rpcResponse struct {
	Result *rpcResult `json:"result"`
	Error  *rpcError  `json:"error"`
}

type rpcResult struct {
	Result  json.RawMessage `json:"result"`
	Value   any             `json:"value"`
	Summary string          `json:"summary"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call performs a generic JSON-RPC invocation, preserving the positional
// plus keyword argument shape of the IPA API.
func (s *rpcSession) call(ctx context.Context, command string, args []string, options map[string]any) (*Result, error) {
	if args == nil {
		args = []string{}
	}
	options = withDefault(options, "version", apiVersion)

	body, err := json.Marshal(rpcRequest{
		Method: command,
		Params: [2]any{args, options},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.base+"/session/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Referer", s.base)
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("%s returned status %q", command, resp.Status)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s response", command)
	}
	if decoded.Error != nil {
		return nil, &CommandError{Code: decoded.Error.Code, Message: decoded.Error.Message}
	}
	if decoded.Result == nil {
		return &Result{}, nil
	}

	result := &Result{Summary: decoded.Result.Summary}
	if v, ok := decoded.Result.Value.(string); ok {
		result.Value = v
	}
	if len(decoded.Result.Result) > 0 {
		// The inner result is not always an object (host_find returns a
		// list); a failed unmarshal just leaves Attrs empty.
		_ = json.Unmarshal(decoded.Result.Result, &result.Attrs)
	}
	return result, nil
}
