/*
Copyright 2025 LeadLoop Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leadloop/leadloop"
)

// schedulerCommands returns the Cobra command that runs the three polling
// loops. It blocks until SIGINT or SIGTERM, then drains in-flight ticks.
func schedulerCommands(b *leadloopInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "start leadloop scheduler loops",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			scheduler := leadloop.NewScheduler(b.engine)
			if err := scheduler.Start(ctx); err != nil {
				log.Fatal(err)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh

			log.Printf("received %s, stopping scheduler", sig)
			scheduler.Stop()
		},
	}

	return cmd
}
