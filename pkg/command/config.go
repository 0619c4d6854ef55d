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
	"github.com/nuclio/rpcruntime/pkg/renderer"

	"github.com/nuclio/errors"
	"github.com/spf13/cobra"
)

type configCommandeer struct {
	cmd            *cobra.Command
	rootCommandeer *RootCommandeer
}

func newConfigCommandeer(rootCommandeer *RootCommandeer) *configCommandeer {
	commandeer := &configCommandeer{
		rootCommandeer: rootCommandeer,
	}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {

			// initialize root
			if err := rootCommandeer.initialize(); err != nil {
				return errors.Wrap(err, "Failed to initialize root")
			}

			outputFormat := rootCommandeer.outputFormat
			if outputFormat == renderer.OutputFormatText {
				outputFormat = renderer.OutputFormatYAML
			}

			return renderer.NewRenderer(cmd.OutOrStdout()).Render(outputFormat, nil, nil, rootCommandeer.config)
		},
	}

	commandeer.cmd = cmd

	return commandeer
}
