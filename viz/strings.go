package viz

import (
	"context"
	"errors"

	"github.com/caffeineduck/goviz/native"
)

// withString duplicates value into the engine, passes the handle to assign
// and releases it afterwards, whether or not assign succeeded.
func withString(ctx context.Context, mod native.Module, g native.Pointer, value Value, assign func(native.Pointer) error) (err error) {
	var p native.Pointer
	if value.HTML {
		p, err = mod.StringDupHTML(ctx, g, value.Text)
	} else {
		p, err = mod.StringDup(ctx, g, value.Text)
	}
	if err != nil {
		return err
	}
	if p == native.Null {
		return ErrStringDup
	}

	defer func() {
		if ferr := mod.StringFree(ctx, g, p); ferr != nil && err == nil {
			err = ferr
		}
	}()

	return assign(p)
}

func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}
