package sdss

import (
	"runtime"
	"strconv"
)

var currentHostOS = detectHostOS()
var currentHostArch = detectHostArch()
var currentPointerWidth = detectPointerWidth()

func detectHostOS() HostOS {
	switch runtime.GOOS {
	case "linux":
		return HostOSLinux
	case "darwin":
		return HostOSDarwin
	case "windows":
		return HostOSWindows
	default:
		return HostOSLinux
	}
}

func detectHostArch() HostArch {
	switch runtime.GOARCH {
	case "amd64":
		return HostArchAMD64
	case "arm64":
		return HostArchARM64
	case "386":
		return HostArch386
	default:
		return HostArchAMD64
	}
}

func detectPointerWidth() PointerWidth {
	if strconv.IntSize == 64 {
		return PointerWidth64
	}
	return PointerWidth32
}
