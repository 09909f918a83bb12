package ipc

import (
	"errors"
	"fmt"
	"net/rpc"
	"strings"

	"tubego/internal/daemon"
	"tubego/internal/registry"
	"tubego/internal/services"
)

var errorCodes = []struct {
	code string
	err  error
}{
	{"not_running", daemon.ErrNotRunning},
	{"cancelled", services.ErrCancelled},
	{"not_found", services.ErrNotFound},
	{"busy", registry.ErrTaskBusy},
	{"invalid_transition", registry.ErrInvalidTransition},
	{"artifact_missing", services.ErrArtifactMissing},
	{"transport", services.ErrTransport},
	{"retrieval", services.ErrRetrieval},
	{"validation", services.ErrValidation},
	{"configuration", services.ErrConfiguration},
}

// RemoteError is an error reported by the daemon. It unwraps to the
// sentinel the daemon-side error matched.
type RemoteError struct {
	Code    string
	Message string
	kind    error
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Unwrap() error { return e.kind }

// encodeError prefixes a daemon-side error with its code so the client can
// restore it.
func encodeError(err error) error {
	if err == nil {
		return nil
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return fmt.Errorf("[%s] %s", c.code, err.Error())
		}
	}
	return err
}

func decodeError(err error) error {
	var serverErr rpc.ServerError
	if !errors.As(err, &serverErr) {
		return err
	}
	msg := string(serverErr)
	if !strings.HasPrefix(msg, "[") {
		return &RemoteError{Message: msg}
	}
	code, rest, ok := strings.Cut(msg[1:], "] ")
	if !ok {
		return &RemoteError{Message: msg}
	}
	for _, c := range errorCodes {
		if c.code == code {
			return &RemoteError{Code: code, Message: rest, kind: c.err}
		}
	}
	return &RemoteError{Code: code, Message: rest}
}
