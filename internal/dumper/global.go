package dumper

import (
	"context"
	"os"
)

var global *Dumper

//nolint:gochecknoinits // env toggle.
func init() {
	if os.Getenv("GATEKEEPER_DEBUG_DUMPER_ENABLED") == "true" {
		config := DefaultConfig()
		config.Enabled = true

		global = New(config)
	}
}

func Enabled() bool {
	if global == nil {
		return false
	}

	return global.config.Enabled
}

func DumpObject(ctx context.Context, obj any, filename string) {
	if global != nil {
		global.DumpStruct(ctx, obj, filename)
	}
}

func DumpBytes(ctx context.Context, data []byte, filename string) {
	if global != nil {
		global.DumpBytes(ctx, data, filename)
	}
}
