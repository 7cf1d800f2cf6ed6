package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/holtzy/go-tftp/internal/config"
	"github.com/holtzy/go-tftp/internal/logging"
	"github.com/holtzy/go-tftp/pkg/server"
)

func main() {
	cfg := config.LoadServerConfig()
	l := logging.NewLogger(cfg.LogLevel).Sugar()
	defer l.Sync()

	s := server.NewServer(l, cfg.Port, cfg.RootDir, cfg.Transfer)

	go func() {
		if err := s.ListenAndServe(); err != nil {
			l.Error(err.Error())
		}
	}()

	l.Infof("listening on port %s, serving %s", cfg.Port, cfg.RootDir)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-signalChan

	if err := s.Close(); err != nil {
		l.Error(err.Error())
	}

	l.Infof("closed connection on port %s", cfg.Port)
}
