package main

import (
	"os"
	"os/signal"
	"syscall"

	"muxserve"
	"muxserve/internal/logging"
)

const addr = "localhost:3000"

func main() {
	defer logging.Cleanup()

	s, err := muxserve.NewServer(addr)
	if err != nil {
		logging.DefaultLogger.Fatalf("listen on %s error: %v", addr, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		sig := <-sigCh
		logging.DefaultLogger.Infof("received %v, shutting down", sig)
		if err := s.Stop(); err != nil {
			logging.DefaultLogger.Errorf("stop error: %v", err)
		}
	}()

	if err = s.Serve(); err != nil {
		logging.DefaultLogger.Fatalf("server stopped with error: %v", err)
	}
	logging.DefaultLogger.Infof("server exited")
}
