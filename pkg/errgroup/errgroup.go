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

package errgroup

import (
	"context"
	"runtime/debug"

	"github.com/nuclio/rpcruntime/pkg/common"

	"github.com/nuclio/logger"
	"golang.org/x/sync/errgroup"
)

const DefaultErrgroupConcurrency = 10

// Group is an errgroup.Group that names its goroutines and converts their panics to errors
type Group struct {
	*errgroup.Group
	logger logger.Logger
	ctx    context.Context
}

// WithContext returns a new group bounded to the given concurrency (DefaultErrgroupConcurrency if <= 0)
func WithContext(ctx context.Context, loggerInstance logger.Logger, concurrency int) (*Group, context.Context) {
	newBaseErrgroup, errgroupCtx := errgroup.WithContext(ctx)

	if concurrency <= 0 {
		concurrency = DefaultErrgroupConcurrency
	}
	newBaseErrgroup.SetLimit(concurrency)

	return &Group{
		Group:  newBaseErrgroup,
		logger: loggerInstance,
		ctx:    errgroupCtx,
	}, errgroupCtx
}

// Go runs f in a goroutine. a panic in f is logged and returned from Wait as an error
func (g *Group) Go(actionName string, f func() error) {
	wrapper := func() (err error) {
		defer func() {
			if recoveredErr := recover(); recoveredErr != nil {
				common.LogPanic(g.logger, actionName, debug.Stack(), recoveredErr)
				err = common.ErrorFromRecoveredError(recoveredErr)
			}
		}()
		err = f()
		return
	}
	g.Group.Go(wrapper)
}
