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
	"github.com/nuclio/rpcruntime/pkg/callregistry"
	"github.com/nuclio/rpcruntime/pkg/calls/builtin"
	"github.com/nuclio/rpcruntime/pkg/renderer"

	"github.com/nuclio/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

type callsCommandeer struct {
	cmd            *cobra.Command
	rootCommandeer *RootCommandeer
}

type callInfo struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	HasReturn bool   `json:"hasReturn"`
}

func newCallsCommandeer(rootCommandeer *RootCommandeer) *callsCommandeer {
	commandeer := &callsCommandeer{
		rootCommandeer: rootCommandeer,
	}

	cmd := &cobra.Command{
		Use:   "calls",
		Short: "List the builtin calls and their ids",
		RunE: func(cmd *cobra.Command, args []string) error {

			// initialize root
			if err := rootCommandeer.initialize(); err != nil {
				return errors.Wrap(err, "Failed to initialize root")
			}

			callInfos := lo.Map(builtin.NewCalls(rootCommandeer.loggerInstance).GetAll(),
				func(callMeta callregistry.CallMeta, _ int) callInfo {
					return callInfo{
						Name:      callMeta.Name(),
						ID:        callMeta.ID().String(),
						HasReturn: callMeta.HasReturn(),
					}
				})

			records := lo.Map(callInfos, func(info callInfo, _ int) []interface{} {
				return []interface{}{info.Name, info.ID, info.HasReturn}
			})

			return renderer.NewRenderer(cmd.OutOrStdout()).Render(rootCommandeer.outputFormat,
				[]interface{}{"Name", "ID", "Returns"},
				records,
				callInfos)
		},
	}

	commandeer.cmd = cmd

	return commandeer
}
