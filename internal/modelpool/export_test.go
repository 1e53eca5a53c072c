// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package modelpool

import "context"

// ProbeOnce drives one probe cycle without the background timer.
func (p *Pool) ProbeOnce(ctx context.Context) { p.probeOnce(ctx) }
