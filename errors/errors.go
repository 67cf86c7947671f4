package errors

import "errors"

var (
	// ErrServerShutdown occurs when the server is closing.
	ErrServerShutdown = errors.New("server is going to be shutdown")
	// ErrAcceptSocket occurs when acceptor does not accept the new connection properly.
	ErrAcceptSocket = errors.New("accept a new connection error")
	// ErrRegister occurs when a descriptor can not be added to the poller.
	ErrRegister = errors.New("register descriptor to poller error")
	// ErrOversizedRequest occurs when the request buffer fills up before the header terminator arrives.
	ErrOversizedRequest = errors.New("request exceeds read buffer without header terminator")
	// ErrConnNotFound occurs when the poller reports a descriptor missing from the connection table.
	ErrConnNotFound = errors.New("connection not found")
)
