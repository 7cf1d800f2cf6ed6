package client

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/holtzy/go-tftp/pkg/tftp"
	"go.uber.org/zap"
)

// Cli runs the REPL against a Connector, reading commands from stdin until
// "quit" or EOF.
type Cli struct {
	l          *zap.SugaredLogger
	tftpClient Connector
}

func NewCli(l *zap.SugaredLogger, tftpClient Connector) *Cli {
	return &Cli{l: l, tftpClient: tftpClient}
}

func (c *Cli) Read() {
	scanner := bufio.NewScanner(os.Stdin)
	evaluator := NewEvaluator(c.l, c.tftpClient)

	fmt.Print("tftp> ")

	for scanner.Scan() {
		evaluator.line = scanner.Text()

		done, err := evaluator.evaluate()
		if err != nil {
			c.reportError(err)
		}

		if done {
			break
		}

		fmt.Print("tftp> ")
	}

	if err := scanner.Err(); err != nil {
		c.l.Fatalf("error while reading stdin: %s", err.Error())
	}
}

// reportError prints a *tftp.TransferError with its kind/code/direction so
// an interactive user can tell a protocol rejection from a timeout or a
// local I/O failure; anything else (bad command, not connected) is printed
// as a plain message.
func (c *Cli) reportError(err error) {
	var terr *tftp.TransferError
	if errors.As(err, &terr) {
		fmt.Printf("%s (code %d, %s): %s\n", terr.Kind, terr.Code, terr.Direction, terr.Msg)

		return
	}

	fmt.Println(err.Error())
}
