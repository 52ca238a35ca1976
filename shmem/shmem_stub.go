//go:build !linux

/*
 *
 * Copyright 2026 The QUICKCOM authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package shmem

import "os"

// Allocate is not supported on this platform.
func Allocate(name string, size uint64) (*ExchangeHandle, error) {
	return nil, ErrUnsupported
}

func mapFile(file *os.File, size int, access AccessMode) ([]byte, error) {
	return nil, ErrUnsupported
}

func unmapMem(mem []byte) error {
	return ErrUnsupported
}

func dupFile(file *os.File) (*os.File, error) {
	return nil, ErrUnsupported
}
