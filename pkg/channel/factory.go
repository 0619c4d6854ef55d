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

package channel

import (
	"fmt"
	"net"
	"time"

	"github.com/nuclio/rpcruntime/pkg/rpcconfig"

	"github.com/mitchellh/mapstructure"
	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

// SocketAttributes are the kind specific attributes of unix / tcp channels
type SocketAttributes struct {
	InboxSize             int
	ConnectTimeoutSeconds int
}

// NewSocketAttributes decodes the attributes map of a channel configuration
func NewSocketAttributes(configuration *rpcconfig.Channel) (*SocketAttributes, error) {
	attributes := SocketAttributes{}

	if err := mapstructure.Decode(configuration.Attributes, &attributes); err != nil {
		return nil, errors.Wrap(err, "Failed to decode attributes")
	}

	if attributes.InboxSize == 0 {
		attributes.InboxSize = DefaultSocketInboxSize
	}

	return &attributes, nil
}

// GetConnectTimeout returns the accept / dial timeout
func (sa *SocketAttributes) GetConnectTimeout() time.Duration {
	if sa.ConnectTimeoutSeconds == 0 {
		return DefaultConnectTimeout
	}

	return time.Duration(sa.ConnectTimeoutSeconds) * time.Second
}

// Server listens according to configuration and hands out the accepted channel
type Server struct {
	logger        logger.Logger
	configuration *rpcconfig.Channel
	attributes    *SocketAttributes
	listener      net.Listener
	address       string
}

// NewServer creates a listener as described by configuration
func NewServer(parentLogger logger.Logger, configuration *rpcconfig.Channel) (*Server, error) {
	attributes, err := NewSocketAttributes(configuration)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create socket attributes")
	}

	newServer := &Server{
		logger:        parentLogger.GetChild("channel-server"),
		configuration: configuration,
		attributes:    attributes,
	}

	newServer.listener, newServer.address, err = Listen(newServer.logger,
		Kind(configuration.Kind),
		configuration.Address)
	if err != nil {
		return nil, errors.Wrap(err, "Can't create listener")
	}

	return newServer, nil
}

// GetAddress returns the address peers should dial
func (s *Server) GetAddress() string {
	return s.address
}

// Accept waits for a single peer
func (s *Server) Accept() (Channel, error) {
	return Accept(s.logger,
		s.listener,
		s.configuration.MaxSize,
		s.attributes.InboxSize,
		s.attributes.GetConnectTimeout())
}

// Close stops listening
func (s *Server) Close() error {
	return s.listener.Close()
}

// Connect dials the peer described by configuration
func Connect(parentLogger logger.Logger, configuration *rpcconfig.Channel) (Channel, error) {
	attributes, err := NewSocketAttributes(configuration)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create socket attributes")
	}

	switch Kind(configuration.Kind) {
	case UnixKind, TCPKind:
		return Dial(parentLogger,
			Kind(configuration.Kind),
			configuration.Address,
			configuration.MaxSize,
			attributes.InboxSize,
			attributes.GetConnectTimeout())
	default:
		return nil, errors.New(fmt.Sprintf("Unsupported channel kind %q", configuration.Kind))
	}
}
