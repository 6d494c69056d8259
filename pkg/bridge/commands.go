/*
 * Copyright 2025 Home Relay Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package bridge

import (
	"context"
	"encoding/json"
	"fmt"
)

// bridgeResponse is the envelope every management reply carries.
type bridgeResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error"`
	Data   json.RawMessage `json:"data"`
}

// command issues a management request and checks the reply status.
func (c *Client) command(ctx context.Context, op string, body map[string]any) (json.RawMessage, error) {
	raw, err := c.Request(ctx, op, body)
	if err != nil {
		return nil, err
	}

	var resp bridgeResponse

	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode bridge response: %w", err)
	}

	if resp.Status != "ok" {
		if resp.Error != "" {
			return nil, fmt.Errorf("bridge rejected %s: %s", op, resp.Error)
		}

		return nil, fmt.Errorf("bridge rejected %s: status %q", op, resp.Status)
	}

	return resp.Data, nil
}

// RenameDevice changes a device's friendly name.
func (c *Client) RenameDevice(ctx context.Context, from, to string) error {
	_, err := c.command(ctx, "device/rename", map[string]any{"from": from, "to": to})
	return err
}

// RemoveDevice removes a device from the network. With force set the bridge
// drops the device even if it does not acknowledge the leave.
func (c *Client) RemoveDevice(ctx context.Context, id string, force bool) error {
	_, err := c.command(ctx, "device/remove", map[string]any{"id": id, "force": force})
	return err
}

// PermitJoin opens or closes the network for new devices. A non-zero
// seconds limits how long the window stays open.
func (c *Client) PermitJoin(ctx context.Context, value bool, seconds int) error {
	body := map[string]any{"value": value}
	if value && seconds > 0 {
		body["time"] = seconds
	}

	_, err := c.command(ctx, "permit_join", body)
	return err
}
