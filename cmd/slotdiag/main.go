/*
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
 */

// slotdiag inspects slot exchange shared memory artifacts.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/AnkiHonnaiah/QUICKCOM-POC-sub005/internal/slotqueue"
	"github.com/AnkiHonnaiah/QUICKCOM-POC-sub005/shmem"
)

func main() {
	root := &cobra.Command{
		Use:           "slotdiag",
		Short:         "Inspect slot exchange shared memory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(queueCmd())

	if err := root.Execute(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func queueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue <file>",
		Short: "Dump the header of a queue memory region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			info, err := file.Stat()
			if err != nil {
				file.Close()
				return err
			}

			region, err := shmem.NewHandle(file, uint64(info.Size()), shmem.ReadOnly).Consume()
			if err != nil {
				return err
			}
			defer region.Close()

			hdr, err := slotqueue.Inspect(region.Bytes())
			if err != nil {
				return err
			}

			bold := color.New(color.Bold)
			bold.Printf("queue region %s (%d bytes)\n", args[0], info.Size())
			fmt.Printf("  magic:    %s\n", colorMagic(hdr.Magic))
			fmt.Printf("  version:  %d\n", hdr.Version)
			fmt.Printf("  capacity: %d\n", hdr.Capacity)
			fmt.Printf("  producer: %d\n", hdr.ProducerIndex)
			fmt.Printf("  consumer: %d\n", hdr.ConsumerIndex)

			used := hdr.ProducerIndex - hdr.ConsumerIndex
			if hdr.Capacity != 0 && used > uint64(hdr.Capacity) {
				color.Red("  used:     %d (exceeds capacity, indices corrupt)", used)
			} else {
				fmt.Printf("  used:     %d\n", used)
			}
			return nil
		},
	}
}

func colorMagic(magic string) string {
	if magic == "SLOTQMM" {
		return color.GreenString("%q", magic)
	}
	return color.RedString("%q (expected \"SLOTQMM\")", magic)
}
