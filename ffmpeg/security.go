package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/Rib4ko/backendYT/execrun"
)

// Options that would add inputs, change overwrite behavior or the output
// muxer. The extractor owns all of those.
var forbiddenOptions = map[string]bool{
	"-i":   true,
	"-y":   true,
	"-n":   true,
	"-f":   true,
	"-ss":  true,
	"-to":  true,
	"-t":   true,
	"-map": true,
}

// ParseExtraArgs splits and validates operator-supplied output options that
// are appended after the fixed encoding profile.
func ParseExtraArgs(command string) ([]string, error) {
	args, err := execrun.SplitArgs(command)
	if err != nil {
		return nil, err
	}
	if err := execrun.RejectShellMeta(args); err != nil {
		return nil, err
	}
	for _, arg := range args {
		if forbiddenOptions[arg] {
			return nil, fmt.Errorf("option %s is managed by the extractor and cannot be overridden", arg)
		}
		if !strings.HasPrefix(arg, "-") && strings.ContainsAny(arg, "/\\") {
			return nil, fmt.Errorf("path-like argument not allowed: %s", arg)
		}
	}
	return args, nil
}
