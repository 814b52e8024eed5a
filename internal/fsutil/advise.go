// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package fsutil holds small OS-advisory helpers for the reader's
// loader, which always reads the sequence and metadata files forward,
// once, start to finish.
package fsutil

import "os"

// AdviseSequential hints to the kernel that f will be read
// sequentially and once. Failure to advise is never fatal -- it is a
// performance hint only, and a no-op on platforms without fadvise.
func AdviseSequential(f *os.File) {
	adviseSequential(f)
}
