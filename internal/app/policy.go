package app

import (
	"errors"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

type SendFailureAction int

const (
	DropFrame SendFailureAction = iota
	DropConnection
)

// Policy decides what a failed non-blocking send means for the connection.
type Policy interface {
	OnSendFailure(uid domain.UserID, err error) SendFailureAction
}

// SimplePolicy unregisters closed handles and drops frames for slow readers.
type SimplePolicy struct{}

func (SimplePolicy) OnSendFailure(_ domain.UserID, err error) SendFailureAction {
	if errors.Is(err, core.ErrConnectionClosed) {
		return DropConnection
	}
	return DropFrame
}
