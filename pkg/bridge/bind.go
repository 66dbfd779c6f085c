package bridge

import "context"

// Operation is an asynchronous unit of work invoked with typed parameters.
type Operation[P any] func(ctx context.Context, params P) (any, error)

// Bind builds a Handler from a per-signature parser and an operation. The parser runs
// synchronously; when it fails the operation is never started.
func Bind[P any](parse func(Bag) (P, error), op Operation[P]) Handler {
	return func(ctx context.Context, bag Bag) *Future {
		params, err := parse(bag)
		if err != nil {
			return Failed(err)
		}
		return Go(ctx, func(ctx context.Context) (any, error) {
			return op(ctx, params)
		})
	}
}

// NoParams is a parser for operations that take no arguments. Any bag is accepted.
func NoParams(Bag) (struct{}, error) {
	return struct{}{}, nil
}
