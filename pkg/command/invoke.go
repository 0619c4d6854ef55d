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
	"time"

	"github.com/nuclio/rpcruntime/pkg/channel"
	"github.com/nuclio/rpcruntime/pkg/renderer"
	"github.com/nuclio/rpcruntime/pkg/rpc"

	"github.com/nuclio/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

type invokeCommandeer struct {
	cmd            *cobra.Command
	rootCommandeer *RootCommandeer
	channelID      int
	self           uint64
	value          int64
	values         []int
	message        string
	timeout        time.Duration
}

// invocation is one row of the invoke output
type invocation struct {
	Call   string      `json:"call"`
	Args   interface{} `json:"args"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`

	future *rpc.Future
}

func newInvokeCommandeer(rootCommandeer *RootCommandeer) *invokeCommandeer {
	commandeer := &invokeCommandeer{
		rootCommandeer: rootCommandeer,
	}

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Connect to a serving peer and run a batch of builtin calls",
		RunE: func(cmd *cobra.Command, args []string) error {

			// initialize root
			if err := rootCommandeer.initialize(); err != nil {
				return errors.Wrap(err, "Failed to initialize root")
			}

			if rootCommandeer.config.Channel.Address == "" {
				return errors.New("Invoke requires the address of a serving peer")
			}

			ctx, cancel := context.WithTimeout(context.Background(), commandeer.timeout)
			defer cancel()

			invocations, err := commandeer.invoke(ctx)
			if err != nil {
				return err
			}

			return commandeer.render(cmd, invocations)
		},
	}

	cmd.Flags().IntVarP(&commandeer.channelID, "channel", "", 0, "Logical channel to commit on")
	cmd.Flags().Uint64VarP(&commandeer.self, "self", "", 0, "Target object of the calls")
	cmd.Flags().Int64VarP(&commandeer.value, "value", "", 21, "Argument of math.double")
	cmd.Flags().IntSliceVarP(&commandeer.values, "values", "", []int{1, 2, 3}, "Arguments of math.sum")
	cmd.Flags().StringVarP(&commandeer.message, "message", "m", "hello", "Argument of echo and log")
	cmd.Flags().DurationVarP(&commandeer.timeout, "timeout", "t", 30*time.Second, "How long to wait for results")

	commandeer.cmd = cmd

	return commandeer
}

func (i *invokeCommandeer) invoke(ctx context.Context) ([]*invocation, error) {
	loggerInstance := i.rootCommandeer.loggerInstance

	channelInstance, err := channel.Connect(loggerInstance, &i.rootCommandeer.config.Channel)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to connect to peer")
	}

	defer channelInstance.Close() // nolint: errcheck

	invokeSession, err := i.rootCommandeer.startSession(ctx, channelInstance)
	if err != nil {
		return nil, err
	}

	defer invokeSession.rpcRuntime.Shutdown() // nolint: errcheck

	commandList, err := invokeSession.rpcRuntime.CreateCommandList(i.channelID)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create command list")
	}

	defer commandList.Close() // nolint: errcheck

	calls := invokeSession.calls
	sumValues := lo.Map(i.values, func(value int, _ int) int64 {
		return int64(value)
	})

	invocations := []*invocation{
		{Call: calls.Double.Name(), Args: i.value},
		{Call: calls.Sum.Name(), Args: sumValues},
		{Call: calls.Echo.Name(), Args: i.message},
		{Call: calls.Log.Name(), Args: i.message},
	}

	for invocationIdx, callMeta := range calls.GetAll()[:len(invocations)] {
		invocations[invocationIdx].future, err = commandList.AddCall(callMeta.ID(),
			i.self,
			invocations[invocationIdx].Args)
		if err != nil {
			return nil, errors.Wrapf(err, "Failed to add call %s", callMeta.Name())
		}
	}

	if err := commandList.Commit(); err != nil {
		return nil, errors.Wrap(err, "Failed to commit")
	}

	loggerInstance.DebugWith("Committed batch",
		"channelID", i.channelID,
		"handle", commandList.Handle(),
		"calls", len(invocations))

	for _, pendingInvocation := range invocations {

		// void calls have nothing to wait for
		if pendingInvocation.future == nil {
			continue
		}

		pendingInvocation.Result, err = pendingInvocation.future.Wait(ctx)
		if err != nil {
			if errors.RootCause(err) == context.DeadlineExceeded {
				return nil, errors.Wrap(err, "Timed out waiting for results")
			}

			pendingInvocation.Error = err.Error()
		}
	}

	return invocations, nil
}

func (i *invokeCommandeer) render(cmd *cobra.Command, invocations []*invocation) error {
	records := lo.Map(invocations, func(completedInvocation *invocation, _ int) []interface{} {
		return []interface{}{
			completedInvocation.Call,
			completedInvocation.Args,
			completedInvocation.Result,
			completedInvocation.Error,
		}
	})

	return renderer.NewRenderer(cmd.OutOrStdout()).Render(i.rootCommandeer.outputFormat,
		[]interface{}{"Call", "Args", "Result", "Error"},
		records,
		invocations)
}
