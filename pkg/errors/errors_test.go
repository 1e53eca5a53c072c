// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package errors_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	vgerr "github.com/vgate-dev/vgate/pkg/errors"
)

func TestCodeOf(t *testing.T) {
	err := vgerr.New(vgerr.CodeVectorNotFound, "record not found")
	assert.Equal(t, vgerr.CodeVectorNotFound, vgerr.CodeOf(err))
	assert.Equal(t, vgerr.Code(""), vgerr.CodeOf(nil))
	assert.Equal(t, vgerr.Code(""), vgerr.CodeOf(stderrors.New("plain")))
}

func TestWrap_PreservesNil(t *testing.T) {
	assert.NoError(t, vgerr.Wrap(nil, vgerr.CodeBackendRequestTimeout, "ignored"))
	assert.NoError(t, vgerr.Wrapf(nil, vgerr.CodeBackendRequestTimeout, "ignored"))
}

func TestWrap_OverridesCode(t *testing.T) {
	inner := vgerr.New(vgerr.CodeBackendUpstreamFailure, "boom")
	outer := vgerr.Wrap(inner, vgerr.CodeSearchEmbeddingUnavailable, "embedding failed")
	assert.Equal(t, vgerr.CodeSearchEmbeddingUnavailable, vgerr.CodeOf(outer))
}

func TestClassifiers(t *testing.T) {
	tests := []struct {
		name  string
		code  vgerr.Code
		check func(error) bool
	}{
		{"not found", vgerr.CodeVectorNotFound, vgerr.IsNotFound},
		{"collection not found", vgerr.CodeCollectionNotFound, vgerr.IsNotFound},
		{"conflict", vgerr.CodeCollectionExists, vgerr.IsConflict},
		{"invalid input", vgerr.CodeSearchInvalidInput, vgerr.IsInvalidInput},
		{"dimension mismatch is invalid input", vgerr.CodeVectorDimensionMismatch, vgerr.IsInvalidInput},
		{"timeout", vgerr.CodeBackendRequestTimeout, vgerr.IsTimeout},
		{"gateway budget timeout", vgerr.CodeGatewayDeadlineExceeded, vgerr.IsTimeout},
		{"unauthorized", vgerr.CodeGatewayUnauthorized, vgerr.IsUnauthorized},
		{"pool exhausted", vgerr.CodePoolExhausted, vgerr.IsPoolExhausted},
		{"all unavailable", vgerr.CodePoolAllUnavailable, vgerr.IsUnavailable},
		{"embedding unavailable", vgerr.CodeSearchEmbeddingUnavailable, vgerr.IsEmbeddingUnavailable},
		{"upstream failure", vgerr.CodeBackendUpstreamFailure, vgerr.IsUpstreamFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(vgerr.New(tt.code, "x")))
			assert.False(t, tt.check(nil))
		})
	}
}

func TestFieldsOf(t *testing.T) {
	err := vgerr.New(vgerr.CodeVectorNotFound, "record not found",
		vgerr.FieldCollection("docs"), vgerr.FieldRecordID("r1"))

	fields := vgerr.FieldsOf(err)
	assert.Equal(t, "docs", fields["collection"])
	assert.Equal(t, "r1", fields["record_id"])
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code vgerr.Code
		want int
	}{
		{vgerr.CodeVectorNotFound, http.StatusNotFound},
		{vgerr.CodeCollectionExists, http.StatusConflict},
		{vgerr.CodeSearchInvalidInput, http.StatusBadRequest},
		{vgerr.CodeGatewayUnauthorized, http.StatusForbidden},
		{vgerr.CodePoolExhausted, http.StatusTooManyRequests},
		{vgerr.CodeBackendRequestTimeout, http.StatusGatewayTimeout},
		{vgerr.CodePoolAllUnavailable, http.StatusBadGateway},
		{vgerr.CodeSearchEmbeddingUnavailable, http.StatusBadGateway},
		{vgerr.CodeGatewayInternalFailure, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, vgerr.HTTPStatus(vgerr.New(tt.code, "x")), string(tt.code))
	}
}

func TestHasCode(t *testing.T) {
	err := vgerr.Errorf(vgerr.CodeBatchInvalidInput, "bad batch: %d ops", 0)
	assert.True(t, vgerr.HasCode(err, vgerr.CodeBatchInvalidInput))
	assert.False(t, vgerr.HasCode(err, vgerr.CodeBatchOpSkipped))
	assert.False(t, vgerr.HasCode(nil, vgerr.CodeBatchInvalidInput))
}
