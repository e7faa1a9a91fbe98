// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package pri

import "time"

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
