package transcribe

import (
	"context"
	"errors"
)

// resolveEngine fails without spawning anything when either resource is
// missing.
func resolveEngine(ctx context.Context, name Name, res Resources) (binary, model string, err error) {
	bin := res.ResolveBinary(ctx)
	mdl := res.ResolveModel(ctx)

	if missing := errors.Join(bin.Err(), mdl.Err()); missing != nil {
		return "", "", &StrategyError{Strategy: name, Message: missing.Error(), Err: missing}
	}
	return bin.Resolved, mdl.Resolved, nil
}
