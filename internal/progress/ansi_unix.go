//go:build !windows

package progress

import "os"

// enableWindowsANSI is a no-op outside Windows; ANSI works natively there.
func enableWindowsANSI(*os.File) {}
