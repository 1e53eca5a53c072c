// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

// Package errors defines the gateway's error taxonomy. Every error carries a
// machine-readable Code; components branch on classifier helpers rather than
// matching message strings, and the protocol adapters map codes to wire
// status at the very edge.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeBackendRequestTimeout  Code = "backend.request.timeout"
	CodeBackendUpstreamFailure Code = "backend.upstream.failure"
	CodeBackendUnavailable     Code = "backend.routing.unavailable"
	CodeBackendEntityNotFound  Code = "backend.entity.not_found"
	CodeBackendConflict        Code = "backend.entity.conflict"
	CodeBackendInvalidInput    Code = "backend.request.invalid_input"

	CodeVectorDimensionMismatch Code = "vector.validate.dimension_mismatch"
	CodeVectorInvalidInput      Code = "vector.validate.invalid_input"
	CodeVectorNotFound          Code = "vector.entity.not_found"

	CodeCollectionNotFound Code = "collection.entity.not_found"
	CodeCollectionExists   Code = "collection.create.conflict"
	CodeCollectionInvalid  Code = "collection.validate.invalid_input"

	CodePoolExhausted      Code = "pool.acquire.exhausted"
	CodePoolAllUnavailable Code = "pool.routing.all_unavailable"
	CodePoolGroupNotFound  Code = "pool.group.not_found"

	CodeSearchEmbeddingUnavailable Code = "search.embed.unavailable"
	CodeSearchInvalidInput         Code = "search.request.invalid_input"

	CodeCacheComputeFailure Code = "cache.compute.failure"

	CodeBatchInvalidInput Code = "batch.request.invalid_input"
	CodeBatchOpSkipped    Code = "batch.operation.skipped"

	CodeGatewayUnauthorized     Code = "gateway.auth.unauthorized"
	CodeGatewayUnknownOperation Code = "gateway.dispatch.not_found"
	CodeGatewayDeadlineExceeded Code = "gateway.budget.timeout"
	CodeGatewayInternalFailure  Code = "gateway.internal.failure"

	CodeConfigLoadFailure          Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"
	CodeServerRequestInvalid  Code = "server.request.invalid_input"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldCollection(value string) Attr {
	return Field("collection", value)
}

func FieldRecordID(value string) Attr {
	return Field("record_id", value)
}

func FieldEndpoint(value string) Attr {
	return Field("endpoint", value)
}

func FieldOperation(value string) Attr {
	return Field("operation", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain, preserving its code.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeGatewayInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsNotFound reports whether err represents a missing entity. Not-found is an
// expected outcome for lookups and a no-op for idempotent deletes.
func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

// IsInvalidInput covers validation failures, including dimension mismatches.
// These are never retried.
func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid_input" || r == "invalid_value" || r == "dimension_mismatch"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsUnauthorized(err error) bool {
	return reason(CodeOf(err)) == "unauthorized"
}

// IsUnavailable reports whether err means a dependency is down or out of
// healthy candidates. The gateway never retries these; retrying would
// amplify load on an already struggling dependency.
func IsUnavailable(err error) bool {
	r := reason(CodeOf(err))
	return r == "unavailable" || r == "all_unavailable"
}

func IsPoolExhausted(err error) bool {
	return HasCode(err, CodePoolExhausted)
}

// IsEmbeddingUnavailable distinguishes a text-to-vector failure from a
// storage search failure, so callers can retry with a pre-computed vector.
func IsEmbeddingUnavailable(err error) bool {
	return HasCode(err, CodeSearchEmbeddingUnavailable)
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

// HTTPStatus maps an error code to the HTTP status the REST adapter reports.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUnauthorized(err):
		return http.StatusForbidden
	case IsPoolExhausted(err):
		return http.StatusTooManyRequests
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUnavailable(err), IsUpstreamFailure(err), IsEmbeddingUnavailable(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeGatewayInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
