// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// postJSON sends a JSON body to the daemon and decodes the JSON response.
func postJSON(path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := http.Post(apiAddress+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return json.NewDecoder(resp.Body).Decode(out)
}

// getJSON fetches a JSON response from the daemon.
func getJSON(path string, out interface{}) error {
	resp, err := http.Get(apiAddress + path)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return json.NewDecoder(resp.Body).Decode(out)
}

// deleteReq issues a DELETE request.
func deleteReq(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodDelete, apiAddress+path, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return json.NewDecoder(resp.Body).Decode(out)
}

// printJSON pretty-prints a response to stdout.
func printJSON(v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(raw))
	return nil
}
