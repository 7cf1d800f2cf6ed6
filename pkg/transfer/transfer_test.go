package transfer_test

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/holtzy/go-tftp/pkg/tftp"
	"github.com/holtzy/go-tftp/pkg/transfer"
	"github.com/stretchr/testify/require"
)

// startServer binds a shared listener socket and serves exactly one
// request on its own goroutine, returning the socket's address.
func startServer(t *testing.T, cfg tftp.Config, rootDir string) string {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, tftp.DatagramSize+int(cfg.BlockSizeCap))

		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}

		first := make([]byte, n)
		copy(first, buf[:n])

		_ = transfer.HandleSession(context.Background(), cfg, conn, first, from, rootDir, nil, time.Second)
	}()

	return conn.LocalAddr().String()
}

func TestSendThenReceiveRoundTripAcrossBlockSizes(t *testing.T) {
	sizes := []uint16{512, 1024, 4096, 8192}

	for _, bs := range sizes {
		for _, parallel := range []bool{true, false} {
			bs, parallel := bs, parallel

			t.Run("", func(t *testing.T) {
				cfg := tftp.DefaultConfig()
				cfg.BlockSizeCap = bs
				cfg.ParallelIO = parallel
				cfg.Timeout = time.Second

				payload := bytes.Repeat([]byte{0xCD}, int(bs)*3+17)

				dir := t.TempDir()

				addr := startServer(t, cfg, dir)
				err := transfer.Send(context.Background(), cfg, addr, "upload.bin", bytes.NewReader(payload), nil, 0)
				require.NoError(t, err)

				got, err := os.ReadFile(filepath.Join(dir, "upload.bin"))
				require.NoError(t, err)
				require.Equal(t, payload, got)

				addr2 := startServer(t, cfg, dir)

				var out bytes.Buffer
				n, err := transfer.Receive(context.Background(), cfg, addr2, "upload.bin", &out, nil, 0)
				require.NoError(t, err)
				require.EqualValues(t, len(payload), n)
				require.Equal(t, payload, out.Bytes())
			})
		}
	}
}

// startServerWithCallback is startServer plus a hook invoked with the
// completed session's accounting, used to inspect the tsize the server
// actually negotiated.
func startServerWithCallback(t *testing.T, cfg tftp.Config, rootDir string, onTransfer transfer.TransferFunc) string {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, tftp.DatagramSize+int(cfg.BlockSizeCap))

		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}

		first := make([]byte, n)
		copy(first, buf[:n])

		_ = transfer.HandleSession(context.Background(), cfg, conn, first, from, rootDir, onTransfer, time.Second)
	}()

	return conn.LocalAddr().String()
}

// TestSendFromFileBackedSourceReportsRealSize is a regression test for an
// *os.File source proposing tsize=0 (a plain io.Reader has no Size()
// method of its own): wrapping it with NewSizedReader must make the
// server's negotiated tsize match the file's actual length.
func TestSendFromFileBackedSourceReportsRealSize(t *testing.T) {
	cfg := tftp.DefaultConfig()
	cfg.Timeout = time.Second

	payload := bytes.Repeat([]byte{0x42}, 5000)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "source.bin")
	require.NoError(t, os.WriteFile(srcPath, payload, 0o644))

	f, err := os.Open(srcPath)
	require.NoError(t, err)
	defer f.Close()

	fi, err := f.Stat()
	require.NoError(t, err)

	var gotInfo tftp.TransferInfo
	onTransfer := func(info tftp.TransferInfo) { gotInfo = info }

	dstDir := t.TempDir()
	addr := startServerWithCallback(t, cfg, dstDir, onTransfer)

	err = transfer.Send(context.Background(), cfg, addr, "upload.bin", transfer.NewSizedReader(f, fi.Size()), nil, 0)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dstDir, "upload.bin"))
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.EqualValues(t, fi.Size(), gotInfo.TotalSize)
}

func TestSendToDeadPeerExhaustsRetriesAndTimesOut(t *testing.T) {
	cfg := tftp.DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.MaxRetries = 2

	dead, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := dead.LocalAddr().String()
	require.NoError(t, dead.Close())

	err = transfer.Send(context.Background(), cfg, addr, "f.bin", bytes.NewReader([]byte("data")), nil, 0)
	require.Error(t, err)

	var terr *tftp.TransferError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, tftp.KindTimeout, terr.Kind)
}

