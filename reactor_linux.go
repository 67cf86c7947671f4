package muxserve

import (
	"runtime"

	"go.uber.org/zap"
	"muxserve/errors"
)

// activateLoop runs the event-loop on the calling goroutine until it stops.
func (svr *server) activateLoop(lockOSThread bool) error {
	if lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	svr.logger.Info("event-loop started", zap.Stringer("addr", svr.ln.lnaddr))
	err := svr.loop.run()
	if err == errors.ErrServerShutdown {
		svr.logger.Info("event-loop is exiting normally on the signal error", zap.Error(err))
	} else {
		svr.logger.Error("event-loop is exiting due to error", zap.Error(err))
	}
	return err
}
