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

package callregistry

import (
	"sort"
	"sync"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

// Registry holds the calls a process can execute. calls are registered at startup and only
// looked up afterwards
type Registry struct {
	logger     logger.Logger
	lock       sync.RWMutex
	registered map[CallID]CallMeta
	byName     map[string]CallMeta
}

func NewRegistry(parentLogger logger.Logger) *Registry {
	return &Registry{
		logger:     parentLogger.GetChild("registry"),
		registered: map[CallID]CallMeta{},
		byName:     map[string]CallMeta{},
	}
}

// Register adds a call. registering the same id twice fails
func (r *Registry) Register(callMeta CallMeta) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, found := r.registered[callMeta.ID()]; found {
		return errors.Wrapf(ErrDuplicateCall, "Already registered: %s", callMeta.Name())
	}

	r.registered[callMeta.ID()] = callMeta
	r.byName[callMeta.Name()] = callMeta

	r.logger.DebugWith("Registered call",
		"name", callMeta.Name(),
		"id", callMeta.ID().String(),
		"hasReturn", callMeta.HasReturn())

	return nil
}

// MustRegister registers calls and panics on failure
func (r *Registry) MustRegister(callMetas ...CallMeta) {
	for _, callMeta := range callMetas {
		if err := r.Register(callMeta); err != nil {

			// calls are registered on startup; no place for error handling
			panic(errors.GetErrorStackString(err, 5))
		}
	}
}

func (r *Registry) Lookup(callID CallID) (CallMeta, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	callMeta, found := r.registered[callID]
	return callMeta, found
}

func (r *Registry) LookupByName(name string) (CallMeta, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	callMeta, found := r.byName[name]
	return callMeta, found
}

// GetNames returns the sorted names of all registered calls
func (r *Registry) GetNames() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
