// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package gateway

import (
	"encoding/json"

	"github.com/vgate-dev/vgate/internal/batch"
	vgerr "github.com/vgate-dev/vgate/pkg/errors"
	"github.com/vgate-dev/vgate/pkg/vector"
)

// Request is the protocol-agnostic internal request every inbound adapter
// normalizes to. Payload is the operation-specific body as decoded wire data.
type Request struct {
	Operation    string         `json:"operation"`
	Payload      map[string]any `json:"payload"`
	Capabilities []string       `json:"caller_capabilities"`
}

// Response is the protocol-agnostic internal response. Err carries the
// typed error kind; the adapter maps it to a wire status at the edge.
type Response struct {
	Status string `json:"status"`
	Body   any    `json:"body,omitempty"`
	Err    error  `json:"-"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// --- operation payloads ---

type insertPayload struct {
	Record vector.Record `json:"record"`
}

type updatePayload struct {
	ID     string        `json:"id"`
	Record vector.Record `json:"record"`
}

type deletePayload struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id,omitempty"`
	Filter     map[string]any `json:"filter,omitempty"`
}

type getPayload struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

type multiSearchPayload struct {
	Requests []vector.SearchRequest `json:"requests"`
}

type batchPayload struct {
	Operations     []batchOp `json:"operations"`
	MaxParallelism int       `json:"max_parallelism,omitempty"`
	Policy         string    `json:"partial_failure_policy,omitempty"`
}

type batchOp struct {
	Kind       string        `json:"kind"`
	Collection string        `json:"collection,omitempty"`
	ID         string        `json:"id,omitempty"`
	Record     vector.Record `json:"record,omitempty"`
}

type collectionPayload struct {
	Name string `json:"name"`
}

// batchOpStatus is the wire shape of one unit result.
type batchOpStatus struct {
	Index    int    `json:"index"`
	RecordID string `json:"record_id,omitempty"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
}

// batchResult is the wire shape of a finished batch. Partial failure is a
// structured result, not a hard error.
type batchResult struct {
	PerOperation []batchOpStatus `json:"per_operation_status"`
	Succeeded    int             `json:"succeeded_count"`
	Failed       int             `json:"failed_count"`
}

func toBatchResult(res batch.Result) batchResult {
	out := batchResult{
		PerOperation: make([]batchOpStatus, len(res.PerOp)),
		Succeeded:    res.Succeeded,
		Failed:       res.Failed,
	}
	for i, st := range res.PerOp {
		ws := batchOpStatus{Index: st.Index, RecordID: st.RecordID, OK: st.Err == nil}
		if st.Err != nil {
			ws.Error = st.Err.Error()
			ws.Code = string(vgerr.CodeOf(st.Err))
		}
		out.PerOperation[i] = ws
	}
	return out
}

// decodePayload converts the generic payload map into a typed operation
// payload via a JSON round-trip, so adapters stay decoupled from internal
// types.
func decodePayload(payload map[string]any, into any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return vgerr.Wrap(err, vgerr.CodeServerRequestInvalid, "encoding request payload")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return vgerr.Wrap(err, vgerr.CodeServerRequestInvalid, "decoding request payload")
	}
	return nil
}
