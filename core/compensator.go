package core

import (
	"context"
	"strings"
)

// Compensator reverses a committed collection after a later pipeline stage
// fails. Reverse reports the outcome in the result instead of an error return:
// compensation failure must not mask the stage error that triggered it.
type Compensator struct {
	gateway CollectionGateway
	logger  Logger
}

func NewCompensator(gateway CollectionGateway, logger Logger) *Compensator {
	return &Compensator{gateway: gateway, logger: logger}
}

func (c *Compensator) Reverse(ctx context.Context, req ReverseRequest) ReversalResult {
	if c == nil || c.gateway == nil {
		return ReversalResult{Err: "compensator not configured"}
	}
	if strings.TrimSpace(req.Reference) == "" {
		return ReversalResult{Err: "collection reference is required"}
	}

	result, err := c.gateway.Reverse(ctx, req)
	if err != nil {
		c.logError(ctx, "collection reversal failed", map[string]any{
			"collection_ref": req.Reference,
			"error":          err.Error(),
		})
		return ReversalResult{Err: err.Error()}
	}

	c.logInfo(ctx, "collection reversed", map[string]any{
		"collection_ref": req.Reference,
		"reversal_ref":   result.ReversalReference,
	})
	return ReversalResult{
		Succeeded:         true,
		ReversalReference: result.ReversalReference,
	}
}

func (c *Compensator) logInfo(ctx context.Context, message string, fields map[string]any) {
	c.log(ctx, false, message, fields)
}

func (c *Compensator) logError(ctx context.Context, message string, fields map[string]any) {
	c.log(ctx, true, message, fields)
}

func (c *Compensator) log(ctx context.Context, isError bool, message string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logger := c.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	if isError {
		logger.Error(message, args...)
		return
	}
	logger.Info(message, args...)
}
