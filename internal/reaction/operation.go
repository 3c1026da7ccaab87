package reaction

import "context"

type operationKey struct{}

// WithOperation attaches an operation ID to ctx. Stores that keep an
// audit trail record it next to each write.
func WithOperation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationKey{}, id)
}

// OperationFrom returns the operation ID attached to ctx, or "".
func OperationFrom(ctx context.Context) string {
	id, _ := ctx.Value(operationKey{}).(string)
	return id
}
