package config

import (
	"strconv"
	"time"

	"github.com/holtzy/go-tftp/pkg/tftp"
	"github.com/holtzy/go-tftp/pkg/utils"
)

// ServerConfig is cmd/tftpd's process configuration, loaded from the
// environment (spec §6).
type ServerConfig struct {
	Port     string
	LogLevel string
	RootDir  string
	Transfer tftp.Config
}

// ClientConfig is cmd/tftp's process configuration.
type ClientConfig struct {
	LogLevel string
	Transfer tftp.Config
}

// LoadServerConfig reads TFTP_PORT, LOG_LEVEL, TFTP_BASE_DIR and the
// transfer tuning knobs, falling back to tftp.DefaultConfig() for anything
// unset.
func LoadServerConfig() ServerConfig {
	d := tftp.DefaultConfig()

	return ServerConfig{
		Port:     GetEnv[string]("TFTP_PORT", "69", false),
		LogLevel: GetEnv[string]("LOG_LEVEL", "info", false),
		RootDir:  GetEnv[string]("TFTP_BASE_DIR", utils.UserHomeDirPath(), false),
		Transfer: tftp.Config{
			BlockSizeCap:  uint16(GetEnv[uint]("TFTP_BLOCK_SIZE", strconv.Itoa(int(d.BlockSizeCap)), false)),
			Timeout:       time.Duration(GetEnv[uint]("TFTP_TIMEOUT_SECONDS", strconv.Itoa(int(d.Timeout.Seconds())), false)) * time.Second,
			MaxRetries:    int(GetEnv[uint]("TFTP_MAX_RETRIES", strconv.Itoa(d.MaxRetries), false)),
			MaxQueueBytes: d.MaxQueueBytes,
			ParallelIO:    GetEnv[bool]("TFTP_PARALLEL_IO", "true", false),
		},
	}
}

// LoadClientConfig reads TFTP_LOG_LEVEL and the transfer tuning knobs.
func LoadClientConfig() ClientConfig {
	d := tftp.DefaultConfig()

	return ClientConfig{
		LogLevel: GetEnv[string]("TFTP_LOG_LEVEL", "info", false),
		Transfer: tftp.Config{
			BlockSizeCap:  uint16(GetEnv[uint]("TFTP_BLOCK_SIZE", strconv.Itoa(int(d.BlockSizeCap)), false)),
			Timeout:       time.Duration(GetEnv[uint]("TFTP_TIMEOUT_SECONDS", strconv.Itoa(int(d.Timeout.Seconds())), false)) * time.Second,
			MaxRetries:    int(GetEnv[uint]("TFTP_NUM_TRIES", strconv.Itoa(d.MaxRetries), false)),
			MaxQueueBytes: d.MaxQueueBytes,
			ParallelIO:    GetEnv[bool]("TFTP_PARALLEL_IO", "true", false),
		},
	}
}
