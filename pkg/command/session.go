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

	"github.com/nuclio/rpcruntime/pkg/callregistry"
	"github.com/nuclio/rpcruntime/pkg/calls/builtin"
	"github.com/nuclio/rpcruntime/pkg/channel"
	"github.com/nuclio/rpcruntime/pkg/metrics"
	"github.com/nuclio/rpcruntime/pkg/rpc"

	"github.com/nuclio/errors"
)

// session is a runtime serving the builtin calls over an established channel
type session struct {
	rpcRuntime *rpc.Runtime
	calls      *builtin.Calls
}

func (rc *RootCommandeer) startSession(ctx context.Context, channelInstance channel.Channel) (*session, error) {
	registry := callregistry.NewRegistry(rc.loggerInstance)

	calls, err := builtin.Register(registry, rc.loggerInstance)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to register builtin calls")
	}

	runtimeConfiguration, err := rpc.NewConfiguration(&rc.config.Runtime)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to resolve runtime configuration")
	}

	rpcRuntime, err := rpc.NewRuntime(rc.loggerInstance, channelInstance, registry, runtimeConfiguration)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create runtime")
	}

	metricSink, err := metrics.NewMetricSink(rc.loggerInstance, &rc.config.Metrics, rpcRuntime)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create metric sink")
	}

	if err := metricSink.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "Failed to start metric sink")
	}

	if err := rpcRuntime.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "Failed to start runtime")
	}

	return &session{
		rpcRuntime: rpcRuntime,
		calls:      calls,
	}, nil
}
