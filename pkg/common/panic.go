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

package common

import (
	"fmt"
	"runtime/debug"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

// LogPanic logs a recovered panic along with the call stack that produced it
func LogPanic(loggerInstance logger.Logger, actionName string, callStack []byte, recovered interface{}) {
	loggerInstance.ErrorWith("Panic caught",
		"action", actionName,
		"err", recovered,
		"stack", string(callStack))
}

// ErrorFromRecoveredError converts the value returned by recover() to an error
func ErrorFromRecoveredError(recovered interface{}) error {
	switch typedRecovered := recovered.(type) {
	case error:
		return typedRecovered
	case string:
		return errors.New(typedRecovered)
	default:
		return errors.New(fmt.Sprintf("Unknown panic: %v", typedRecovered))
	}
}

// CatchAndLogPanic is meant to be deferred. it recovers, logs and stores the panic in err (when given)
//
//	defer common.CatchAndLogPanic(logger, "execute batch", &err)
func CatchAndLogPanic(loggerInstance logger.Logger, actionName string, err *error) {
	if recovered := recover(); recovered != nil {
		LogPanic(loggerInstance, actionName, debug.Stack(), recovered)

		if err != nil {
			*err = ErrorFromRecoveredError(recovered)
		}
	}
}
