// Package client implements the interactive tftp CLI's Connector: a thin
// session holder around pkg/transfer's Send/Receive driver entrypoints.
package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/holtzy/go-tftp/pkg/tftp"
	"github.com/holtzy/go-tftp/pkg/transfer"
	"go.uber.org/zap"
)

// Connector is the CLI-facing surface the Evaluator drives.
type Connector interface {
	Connect(addr string) error
	Get(ctx context.Context, filename string) error
	Put(ctx context.Context, filename string) error
	SetTimeout(timeout uint)
	SetTrace()
	Close() error
}

// Client holds the peer address and transfer knobs a connected session
// uses for every subsequent get/put (spec §6's interactive session model).
type Client struct {
	l     *zap.SugaredLogger
	cfg   tftp.Config
	peer  string
	trace bool
}

// NewClient returns a Connector seeded with cfg's transfer knobs; Connect
// must be called before Get or Put.
func NewClient(l *zap.SugaredLogger, cfg tftp.Config) Connector {
	return &Client{l: l, cfg: cfg}
}

func (c *Client) Connect(addr string) error {
	c.peer = addr

	return nil
}

func (c *Client) SetTimeout(timeout uint) {
	c.cfg.Timeout = time.Duration(timeout) * time.Second
}

// SetTrace toggles progress logging, one line per second of a transfer
// (spec §6's optional trace mode); there is no wire-level effect, only
// local verbosity.
func (c *Client) SetTrace() {
	c.trace = !c.trace
}

func (c *Client) Close() error {
	return nil
}

func (c *Client) progressFunc(filename string) transfer.ProgressFunc {
	if !c.trace {
		return nil
	}

	return func(p *transfer.Progress) {
		c.l.Infof("%s: %d/%d bytes", filename, p.TransferredBytes, p.TotalBytes)
	}
}

func (c *Client) Get(ctx context.Context, filename string) error {
	if c.peer == "" {
		return fmt.Errorf("not connected: use connect <host> <port> first")
	}

	f, err := os.Create(filepath.Base(filename))
	if err != nil {
		return fmt.Errorf("error while creating local file %s: %w", filename, err)
	}
	defer f.Close()

	n, err := transfer.Receive(ctx, c.cfg, c.peer, filename, f, c.progressFunc(filename), time.Second)
	if err != nil {
		return err
	}

	c.l.Infof("received %s (%d bytes)", filename, n)

	return nil
}

func (c *Client) Put(ctx context.Context, filename string) error {
	if c.peer == "" {
		return fmt.Errorf("not connected: use connect <host> <port> first")
	}

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("error while opening local file %s: %w", filename, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("error while statting local file %s: %w", filename, err)
	}

	src := transfer.NewSizedReader(f, fi.Size())

	if err := transfer.Send(ctx, c.cfg, c.peer, filepath.Base(filename), src, c.progressFunc(filename), time.Second); err != nil {
		return err
	}

	c.l.Infof("sent %s", filename)

	return nil
}
