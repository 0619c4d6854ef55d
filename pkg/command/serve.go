/*
Copyright 2024 The Nuclio Authors.

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

package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nuclio/rpcruntime/pkg/channel"
	"github.com/nuclio/rpcruntime/pkg/common"

	"github.com/nuclio/errors"
	"github.com/spf13/cobra"
)

type serveCommandeer struct {
	cmd            *cobra.Command
	rootCommandeer *RootCommandeer
}

func newServeCommandeer(rootCommandeer *RootCommandeer) *serveCommandeer {
	commandeer := &serveCommandeer{
		rootCommandeer: rootCommandeer,
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept a single peer and serve the builtin calls until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {

			// initialize root
			if err := rootCommandeer.initialize(); err != nil {
				return errors.Wrap(err, "Failed to initialize root")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return commandeer.serve(ctx, cmd)
		},
	}

	commandeer.cmd = cmd

	return commandeer
}

func (s *serveCommandeer) serve(ctx context.Context, cmd *cobra.Command) (err error) {
	loggerInstance := s.rootCommandeer.loggerInstance
	defer common.CatchAndLogPanic(loggerInstance, "serve", &err)

	server, err := channel.NewServer(loggerInstance, &s.rootCommandeer.config.Channel)
	if err != nil {
		return errors.Wrap(err, "Failed to create channel server")
	}

	defer server.Close() // nolint: errcheck

	// peers read the address off stdout
	fmt.Fprintln(cmd.OutOrStdout(), server.GetAddress()) // nolint: errcheck

	channelInstance, err := server.Accept()
	if err != nil {
		return errors.Wrap(err, "Failed to accept peer")
	}

	defer channelInstance.Close() // nolint: errcheck

	serveSession, err := s.rootCommandeer.startSession(ctx, channelInstance)
	if err != nil {
		return err
	}

	loggerInstance.InfoWith("Serving", "address", server.GetAddress())

	// the runtime stops on its own when the peer goes away
	runErr := make(chan error, 1)
	go func() {
		runErr <- serveSession.rpcRuntime.Wait()
	}()

	select {
	case <-ctx.Done():
		loggerInstance.InfoWith("Interrupted, shutting down")
	case err := <-runErr:
		if errors.RootCause(err) == channel.ErrChannelClosed {
			loggerInstance.InfoWith("Peer disconnected")
			err = nil
		}

		if err != nil {
			return errors.Wrap(err, "Runtime failed")
		}
	}

	if err := serveSession.rpcRuntime.Shutdown(); err != nil && errors.RootCause(err) != channel.ErrChannelClosed {
		return errors.Wrap(err, "Failed to shut down runtime")
	}

	return nil
}
