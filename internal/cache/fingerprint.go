// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package cache

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sort"

	"github.com/vgate-dev/vgate/pkg/vector"
)

// Fingerprint is the stable hash of a normalized search request, used as the
// cache key.
type Fingerprint uint64

// DefaultQuantum is the default quantization granularity for float
// components. Upstream embedding generation introduces floating-point noise;
// hashing rounded components trades a sliver of precision for cache hits on
// effectively identical queries.
const DefaultQuantum = 1e-6

// SearchFingerprint derives the cache key for a search request. Vector
// components and the score threshold are quantized to quantum before
// hashing; filter fields are hashed in sorted key order.
func SearchFingerprint(req vector.SearchRequest, quantum float64) Fingerprint {
	if quantum <= 0 {
		quantum = DefaultQuantum
	}

	h := fnv.New64a()
	writeString(h, req.Collection)
	writeString(h, req.QueryText)
	writeInt(h, int64(req.TopK))

	for _, v := range req.QueryVector {
		writeInt(h, quantize(float64(v), quantum))
	}

	if req.ScoreThreshold != nil {
		writeInt(h, quantize(*req.ScoreThreshold, quantum))
	}

	keys := make([]string, 0, len(req.Filter))
	for k := range req.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeString(h, k)
		writeString(h, fmt.Sprintf("%v", req.Filter[k]))
	}

	return Fingerprint(h.Sum64())
}

func quantize(v, quantum float64) int64 {
	return int64(math.Round(v / quantum))
}

func writeString(h interface{ Write([]byte) (int, error) }, s string) {
	_, _ = h.Write([]byte(s))
	_, _ = h.Write([]byte{0})
}

func writeInt(h interface{ Write([]byte) (int, error) }, v int64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, _ = h.Write(buf[:])
}
