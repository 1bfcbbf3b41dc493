package retry

import "context"

// DoWithResult runs fn through r and returns its typed result.
//
//	task, err := retry.DoWithResult(ctx, r, func(ctx context.Context) (*threed.ConversionTask, error) {
//	    return gw.Status(ctx, id)
//	})
func DoWithResult[T any](ctx context.Context, r Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
