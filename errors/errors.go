package errors

import "fmt"

var (
	ErrSessionCreateFailed = fmt.Errorf("session create failed")
	ErrSessionNotFound     = fmt.Errorf("session not found")
	ErrSessionFull         = fmt.Errorf("session is full")
	ErrConnectFailed       = fmt.Errorf("connect failed")
	ErrHostLost            = fmt.Errorf("host connection lost")
	ErrProtocolViolation   = fmt.Errorf("protocol violation")
	ErrNotIdle             = fmt.Errorf("session is not idle")
	ErrNotConnected        = fmt.Errorf("no active session")
	ErrWorkerPanic         = fmt.Errorf("worker panic")
)
