// Package utils holds small OS-facing helpers with no natural home in a
// domain package.
package utils

import (
	"fmt"
	"os"
)

// UserHomeDirPath returns "$HOME/tftp", creating it if necessary. It is the
// fallback root directory a server binds to when TFTP_BASE_DIR is unset.
func UserHomeDirPath() string {
	p, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("error while getting user home dir: %w", err))
	}

	tftpBaseDir := fmt.Sprintf("%s/tftp", p)

	if _, err := os.Stat(tftpBaseDir); err != nil {
		if os.IsNotExist(err) {
			if err := os.Mkdir(tftpBaseDir, 0o750); err != nil {
				panic(fmt.Errorf("error while creating tftp base dir: %w", err))
			}
		} else {
			panic(fmt.Errorf("error checking if file exists: %w", err))
		}
	}

	return tftpBaseDir
}
