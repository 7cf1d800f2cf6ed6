package main

import (
	"github.com/holtzy/go-tftp/internal/config"
	"github.com/holtzy/go-tftp/internal/logging"
	"github.com/holtzy/go-tftp/pkg/client"
)

func main() {
	cfg := config.LoadClientConfig()
	l := logging.NewLogger(cfg.LogLevel).Sugar()
	defer l.Sync()

	c := client.NewClient(l, cfg.Transfer)
	cli := client.NewCli(l, c)

	cli.Read()
}
