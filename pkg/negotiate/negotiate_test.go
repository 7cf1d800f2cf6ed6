package negotiate_test

import (
	"testing"
	"time"

	"github.com/holtzy/go-tftp/pkg/negotiate"
	"github.com/holtzy/go-tftp/pkg/tftp"
	"github.com/stretchr/testify/require"
)

func testConfig() tftp.Config {
	cfg := tftp.DefaultConfig()
	cfg.BlockSizeCap = 8192
	cfg.Timeout = 5 * time.Second

	return cfg
}

func TestClientProposeIncludesAllThreeOptions(t *testing.T) {
	opts := negotiate.ClientPropose(testConfig(), 1_000_000)

	v, ok := tftp.OptionValue(opts, tftp.OptTsize)
	require.True(t, ok)
	require.Equal(t, "1000000", v)

	v, ok = tftp.OptionValue(opts, tftp.OptBlksize)
	require.True(t, ok)
	require.Equal(t, "8192", v)

	v, ok = tftp.OptionValue(opts, tftp.OptTimeout)
	require.True(t, ok)
	require.Equal(t, "5", v)
}

func TestClientAcceptReceiveOAckHonoursWithinCap(t *testing.T) {
	oack := &tftp.OAck{Options: []tftp.Option{
		{Key: "blksize", Value: "8192"},
		{Key: "timeout", Value: "3"},
		{Key: "tsize", Value: "1000000"},
	}}

	acc, err := negotiate.ClientAcceptReceive(oack, testConfig())
	require.NoError(t, err)
	require.Equal(t, uint16(8192), acc.BlockSize)
	require.Equal(t, 3, acc.Timeout)
	require.EqualValues(t, 1000000, acc.TotalSize)
	require.True(t, acc.NegotiationAccepted)
}

func TestClientAcceptRejectsBlksizeAboveCap(t *testing.T) {
	cfg := testConfig()
	cfg.BlockSizeCap = 4096

	oack := &tftp.OAck{Options: []tftp.Option{{Key: "blksize", Value: "65000"}}}

	_, err := negotiate.ClientAcceptReceive(oack, cfg)
	require.Error(t, err)

	var terr *tftp.TransferError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, tftp.KindProtocol, terr.Kind)
}

func TestClientAcceptSendAckZeroRevertsToDefaults(t *testing.T) {
	ack := &tftp.Ack{BlockNum: 0}

	acc, err := negotiate.ClientAcceptSend(ack, testConfig())
	require.NoError(t, err)
	require.Equal(t, uint16(tftp.MaxPayloadSize), acc.BlockSize)
	require.False(t, acc.NegotiationAccepted)
}

func TestClientAcceptReceiveDataOneMeansSilentlyIgnored(t *testing.T) {
	data := &tftp.Data{BlockNum: 1, Payload: make([]byte, 512)}

	acc, err := negotiate.ClientAcceptReceive(data, testConfig())
	require.NoError(t, err)
	require.Equal(t, uint16(512), acc.BlockSize)
	require.EqualValues(t, 0, acc.TotalSize)
	require.Len(t, acc.FirstPayload, 512)
}

func TestClientAcceptSurfacesErrorPacket(t *testing.T) {
	e := &tftp.Error{ErrorCode: tftp.ErrIllegalTftpOp, ErrMsg: "nope"}

	_, err := negotiate.ClientAcceptReceive(e, testConfig())
	require.Error(t, err)
}

func TestServerReconcileSkipsOAckWhenNoOptionsProposed(t *testing.T) {
	req := &tftp.Request{Opcode_: tftp.OpCodeRRQ, Filename: "f", Mode: "octet"}

	accepted, blockSize, _ := negotiate.ServerReconcile(req, testConfig(), 123)
	require.Empty(t, accepted)
	require.Equal(t, uint16(tftp.MaxPayloadSize), blockSize)
}

func TestServerReconcileClampsBlksizeToCap(t *testing.T) {
	cfg := testConfig()
	cfg.BlockSizeCap = 4096

	req := &tftp.Request{
		Opcode_: tftp.OpCodeRRQ, Filename: "f", Mode: "octet",
		Options: []tftp.Option{{Key: "blksize", Value: "65000"}},
	}

	accepted, blockSize, _ := negotiate.ServerReconcile(req, cfg, 10)
	require.Equal(t, uint16(4096), blockSize)

	v, ok := tftp.OptionValue(accepted, "blksize")
	require.True(t, ok)
	require.Equal(t, "4096", v)
}

func TestServerReconcileEchoesTsizeOnRead(t *testing.T) {
	req := &tftp.Request{
		Opcode_: tftp.OpCodeRRQ, Filename: "f", Mode: "octet",
		Options: []tftp.Option{{Key: "tsize", Value: "0"}},
	}

	accepted, _, _ := negotiate.ServerReconcile(req, testConfig(), 5000)

	v, ok := tftp.OptionValue(accepted, "tsize")
	require.True(t, ok)
	require.Equal(t, "5000", v)
}

func TestServerReconcileClampsTimeoutRange(t *testing.T) {
	req := &tftp.Request{
		Opcode_: tftp.OpCodeWRQ, Filename: "f", Mode: "octet",
		Options: []tftp.Option{{Key: "timeout", Value: "999"}},
	}

	accepted, _, timeout := negotiate.ServerReconcile(req, testConfig(), 0)
	require.Equal(t, time.Duration(tftp.MaxTimeout)*time.Second, timeout)

	v, ok := tftp.OptionValue(accepted, "timeout")
	require.True(t, ok)
	require.Equal(t, "255", v)
}
