package surface

import (
	"fmt"
	"log/slog"
)

// Kinds of surface accepted by Open.
const (
	KindScripted = "scripted"
	KindFile     = "file"
	KindClaude   = "claude"
)

// Options selects and configures a surface.
type Options struct {
	Kind string
	// Dir is the exchange directory of the file surface.
	Dir string
	// Script is the YAML script of the scripted surface; empty uses DefaultScript.
	Script string
	Claude ClaudeConfig
}

// Open creates the surface described by opts.
func Open(opts Options, logger *slog.Logger) (Surface, error) {
	switch opts.Kind {
	case KindScripted, "":
		script := DefaultScript()
		if opts.Script != "" {
			var err error
			if script, err = LoadScript(opts.Script); err != nil {
				return nil, err
			}
		}
		return NewScripted(script), nil
	case KindFile:
		if opts.Dir == "" {
			return nil, fmt.Errorf("file surface needs a directory")
		}
		return NewFile(opts.Dir, logger)
	case KindClaude:
		return NewClaude(opts.Claude, logger)
	default:
		return nil, fmt.Errorf("unknown surface kind %q", opts.Kind)
	}
}
