//go:build linux

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

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Allocate creates an anonymous shared memory region of the given size and
// returns a read-write exchange handle for it. The region is backed by a memfd
// and vanishes when the last mapping and descriptor are gone.
func Allocate(name string, size uint64) (*ExchangeHandle, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("shmem: memfd_create %q failed: %w", name, err)
	}
	file := os.NewFile(uintptr(fd), name)
	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		return nil, fmt.Errorf("shmem: resizing %q to %d bytes failed: %w", name, size, err)
	}
	return NewHandle(file, size, ReadWrite), nil
}

// mapFile memory-maps size bytes of file with the permissions implied by the
// access mode.
func mapFile(file *os.File, size int, access AccessMode) ([]byte, error) {
	prot := unix.PROT_READ
	if access == ReadWrite {
		prot |= unix.PROT_WRITE
	}
	mem, err := unix.Mmap(int(file.Fd()), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return mem, nil
}

// unmapMem releases a mapping created by mapFile.
func unmapMem(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

// dupFile duplicates the descriptor behind file into an independent *os.File.
func dupFile(file *os.File) (*os.File, error) {
	fd, err := unix.Dup(int(file.Fd()))
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(fd)
	return os.NewFile(uintptr(fd), file.Name()), nil
}
