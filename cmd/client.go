// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"grimm.is/peek/internal/api"
	"grimm.is/peek/internal/model"
)

// apiClient talks to a running 'peek monitor'.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

// newAPIClient targets listen, dialing loopback when the monitor is bound
// to every interface.
func newAPIClient(listen, token string) *apiClient {
	if host, port, err := net.SplitHostPort(listen); err == nil {
		if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
			listen = net.JoinHostPort("127.0.0.1", port)
		}
	}
	return &apiClient{
		base:  "http://" + listen + "/api/v1",
		token: token,
		http:  &http.Client{Timeout: 5 * time.Second},
	}
}

// applyOverride posts an override to the daemon.
func (c *apiClient) applyOverride(path string, status model.TrustStatus) error {
	body, err := json.Marshal(api.OverrideRequest{Path: path, Status: status})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.base+"/overrides", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set(api.HeaderAPIKey, c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &remoteError{status: resp.StatusCode, msg: e.Error, details: e.Details}
	}
	return nil
}

// remoteError is an error answered by the daemon, as opposed to a failure
// to reach it.
type remoteError struct {
	status  int
	msg     string
	details string
}

func (e *remoteError) Error() string {
	if e.details != "" {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.msg, e.details, e.status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.msg, e.status)
}
