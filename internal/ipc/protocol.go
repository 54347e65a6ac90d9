// Package ipc is the local control channel of the engine. Requests and
// responses are single JSON lines over a named pipe (Windows) or a unix
// domain socket (elsewhere); each connection carries one request.
package ipc

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
)

// Control commands understood by the daemon.
const (
	CommandStatus           = "status"
	CommandSendKeys         = "send-keys"
	CommandReload           = "reload"
	CommandSetToggleKey     = "set-toggle-key"
	CommandCaptureToggleKey = "capture-toggle-key"
	CommandActivate         = "activate"
	CommandUsage            = "usage"
)

// addressEnv overrides the default control address, e.g. for tests running
// next to a live daemon.
const addressEnv = "QUOL_INPUT_PIPE"

// Request is a single control command.
type Request struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Response is the result of a control command. ExitCode follows process
// conventions: zero is success.
type Response struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// OK builds a successful response.
func OK(stdout string) Response { return Response{Stdout: stdout} }

// Fail builds a failed response with a message for stderr.
func Fail(msg string) Response {
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	return Response{ExitCode: 1, Stderr: msg}
}

// CommandExecutor handles a control request and returns a response.
type CommandExecutor interface {
	Execute(req Request) Response
}

// ExecutorFunc adapts a function to CommandExecutor.
type ExecutorFunc func(req Request) Response

func (f ExecutorFunc) Execute(req Request) Response { return f(req) }

// DefaultAddress returns the control address. The QUOL_INPUT_PIPE environment
// variable wins when it passes validation; otherwise a per-user default is
// built.
func DefaultAddress() string {
	if v, ok := trustedAddressFromEnv(); ok {
		return v
	}
	return defaultAddress()
}

func trustedAddressFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv(addressEnv))
	if value == "" {
		return "", false
	}
	if !validAddress(value) {
		slog.Warn("[ipc] "+addressEnv+" rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

func encodeRequest(req Request) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Args == nil {
		req.Args = []string{}
	}
	return req, nil
}

func encodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
