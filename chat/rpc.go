package chat

import (
	"context"

	"github.com/wippyai/chat-runtime/errors"
)

// RPCDriver executes one unary exchange against the remote RPC endpoint.
// The wire mechanics (gRPC framing, proxy tunneling, TLS) live behind this
// seam; request and response bodies are pre-serialized bytes the runtime
// never interprets.
type RPCDriver interface {
	Invoke(ctx context.Context, method, urlFragment string, body []byte, headers map[string][]string) ([]byte, error)
}

// DeviceClient fetches the account's device list as an opaque response
// blob for the embedding caller to decode.
type DeviceClient struct {
	driver RPCDriver
}

// NewDeviceClient builds a device client over the given driver.
func NewDeviceClient(driver RPCDriver) (*DeviceClient, error) {
	if driver == nil {
		return nil, errors.New("chat: rpc driver is required")
	}
	return &DeviceClient{driver: driver}, nil
}

// GetDevices performs the device-list exchange. The request is a
// pre-serialized message; authorization is passed through untouched.
func (c *DeviceClient) GetDevices(ctx context.Context, request []byte, authorization string) ([]byte, error) {
	headers := map[string][]string{}
	if authorization != "" {
		headers["authorization"] = []string{authorization}
	}
	out, err := c.driver.Invoke(ctx, "GET", "/v1/devices", request, headers)
	if err != nil {
		return nil, errors.Classify(errors.OpChatSend, err)
	}
	return out, nil
}

// ProfileClient fetches versioned profiles as opaque response blobs.
type ProfileClient struct {
	driver RPCDriver
}

// NewProfileClient builds a profile client over the given driver.
func NewProfileClient(driver RPCDriver) (*ProfileClient, error) {
	if driver == nil {
		return nil, errors.New("chat: rpc driver is required")
	}
	return &ProfileClient{driver: driver}, nil
}

// GetVersionedProfile performs the versioned-profile exchange with a
// pre-serialized request message.
func (c *ProfileClient) GetVersionedProfile(ctx context.Context, request []byte) ([]byte, error) {
	out, err := c.driver.Invoke(ctx, "GET", "/v1/profile", request, nil)
	if err != nil {
		return nil, errors.Classify(errors.OpChatSend, err)
	}
	return out, nil
}
