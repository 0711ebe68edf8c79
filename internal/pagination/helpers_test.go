// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pagination

import "time"

const (
	testWait = 2 * time.Second
	testTick = 5 * time.Millisecond
)
