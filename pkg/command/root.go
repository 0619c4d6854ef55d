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
	"os"

	"github.com/nuclio/rpcruntime/pkg/rpcconfig"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	nucliozap "github.com/nuclio/zap"
	"github.com/spf13/cobra"
)

type RootCommandeer struct {
	loggerInstance logger.Logger
	cmd            *cobra.Command
	configPath     string
	verbose        bool
	outputFormat   string
	config         *rpcconfig.Config

	// overrides of the configuration file
	channelKind  string
	address      string
	maxSize      int
	numChannels  int
	codecName    string
	maxFrameSize int
}

func NewRootCommandeer() *RootCommandeer {
	commandeer := &RootCommandeer{}

	cmd := &cobra.Command{
		Use:           "rpcruntime [command]",
		Short:         "Batched RPC between two processes over a single channel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfigPath := os.Getenv("RPCRUNTIME_CONFIG")

	cmd.PersistentFlags().BoolVarP(&commandeer.verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().StringVarP(&commandeer.configPath, "config", "c", defaultConfigPath, "Path of configuration file")
	cmd.PersistentFlags().StringVarP(&commandeer.outputFormat, "output", "o", "text", "Output format - \"text\", \"yaml\" or \"json\"")
	cmd.PersistentFlags().StringVarP(&commandeer.channelKind, "kind", "k", "", "Channel kind - \"unix\" or \"tcp\"")
	cmd.PersistentFlags().StringVarP(&commandeer.address, "address", "a", "", "Socket path (unix) or host:port (tcp)")
	cmd.PersistentFlags().IntVarP(&commandeer.maxSize, "max-size", "", 0, "Largest single channel send, in bytes")
	cmd.PersistentFlags().IntVarP(&commandeer.numChannels, "channels", "", 0, "Number of logical channels")
	cmd.PersistentFlags().StringVarP(&commandeer.codecName, "codec", "", "", "Argument codec - \"msgpack\" or \"json\"")
	cmd.PersistentFlags().IntVarP(&commandeer.maxFrameSize, "max-frame-size", "", 0, "Largest frame payload accepted, in bytes")

	cmd.AddCommand(
		newServeCommandeer(commandeer).cmd,
		newInvokeCommandeer(commandeer).cmd,
		newCallsCommandeer(commandeer).cmd,
		newConfigCommandeer(commandeer).cmd,
	)

	commandeer.cmd = cmd

	return commandeer
}

// Execute uses os.Args to execute the command
func (rc *RootCommandeer) Execute() error {
	return rc.cmd.Execute()
}

// GetCmd returns the underlying cobra command
func (rc *RootCommandeer) GetCmd() *cobra.Command {
	return rc.cmd
}

func (rc *RootCommandeer) initialize() error {
	var err error

	rc.config, err = rc.readConfiguration()
	if err != nil {
		return errors.Wrap(err, "Failed to read configuration")
	}

	rc.loggerInstance, err = rc.createLogger()
	if err != nil {
		return errors.Wrap(err, "Failed to create logger")
	}

	rc.loggerInstance.DebugWith("Initialized",
		"configPath", rc.configPath,
		"channelKind", rc.config.Channel.Kind,
		"numChannels", rc.config.Runtime.NumChannels)

	return nil
}

func (rc *RootCommandeer) readConfiguration() (*rpcconfig.Config, error) {
	configReader, err := rpcconfig.NewReader()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create configuration reader")
	}

	config, err := configReader.ReadFileOrDefault(rc.configPath)
	if err != nil {
		return nil, err
	}

	if rc.channelKind != "" {
		config.Channel.Kind = rc.channelKind
	}

	if rc.address != "" {
		config.Channel.Address = rc.address
	}

	if rc.maxSize != 0 {
		config.Channel.MaxSize = rc.maxSize
	}

	if rc.numChannels != 0 {
		config.Runtime.NumChannels = rc.numChannels
	}

	if rc.codecName != "" {
		config.Runtime.Codec = rc.codecName
	}

	if rc.maxFrameSize != 0 {
		config.Runtime.MaxFrameSize = rc.maxFrameSize
	}

	if rc.verbose {
		config.Logger.Level = "debug"
	}

	if err := configReader.Validate(config); err != nil {
		return nil, errors.Wrap(err, "Invalid configuration")
	}

	return config, nil
}

func (rc *RootCommandeer) createLogger() (logger.Logger, error) {
	var loggerLevel nucliozap.Level

	switch rc.config.Logger.Level {
	case "debug":
		loggerLevel = nucliozap.DebugLevel
	case "warn":
		loggerLevel = nucliozap.WarnLevel
	case "error":
		loggerLevel = nucliozap.ErrorLevel
	default:
		loggerLevel = nucliozap.InfoLevel
	}

	// log to stderr so command output stays parsable
	loggerInstance, err := nucliozap.NewNuclioZap("rpcruntime",
		rc.config.Logger.Encoding,
		nil,
		os.Stderr,
		os.Stderr,
		loggerLevel)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create logger")
	}

	return loggerInstance, nil
}
