package storage

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OperationContext tags the queries issued on behalf of one operation.
type OperationContext struct {
	// OperationID is a unique identifier for this operation (generated if empty)
	OperationID string

	// ReqID is the control-plane request that caused the operation, if any
	ReqID uint64

	// Source identifies the component initiating the operation
	Source string

	StartTime time.Time
}

type contextKey int

const (
	operationContextKey contextKey = iota
)

// NewOperationContext creates a new OperationContext for source.
func NewOperationContext(source string) *OperationContext {
	return &OperationContext{
		OperationID: uuid.New().String(),
		Source:      source,
		StartTime:   time.Now(),
	}
}

// WithReqID sets the request id.
func (oc *OperationContext) WithReqID(reqID uint64) *OperationContext {
	oc.ReqID = reqID
	return oc
}

// WithOperationContext attaches an OperationContext to a context.Context.
func WithOperationContext(ctx context.Context, oc *OperationContext) context.Context {
	return context.WithValue(ctx, operationContextKey, oc)
}

// GetOperationContext retrieves the OperationContext from a context.Context.
// Returns nil if no OperationContext is present.
func GetOperationContext(ctx context.Context) *OperationContext {
	oc, _ := ctx.Value(operationContextKey).(*OperationContext)
	return oc
}

// MustGetOperationContext retrieves the OperationContext or creates a default one.
func MustGetOperationContext(ctx context.Context) *OperationContext {
	oc := GetOperationContext(ctx)
	if oc == nil {
		oc = NewOperationContext("unknown")
	}
	return oc
}

// QueryComment generates a SQL comment with operation context for query tagging.
func (oc *OperationContext) QueryComment() string {
	var b strings.Builder
	b.WriteString("/* op_id:")
	b.WriteString(oc.OperationID)
	if oc.ReqID != 0 {
		b.WriteString(" req_id:")
		b.WriteString(strconv.FormatUint(oc.ReqID, 16))
	}
	b.WriteString(" source:")
	b.WriteString(oc.Source)
	b.WriteString(" */")
	return b.String()
}
