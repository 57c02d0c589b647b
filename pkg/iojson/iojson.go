// Package iojson reads and writes JSON for the command line.
package iojson

import (
	"encoding/json"
	"fmt"
	"io"
)

// Error is the JSON shape of a failed command.
type Error struct {
	Message string         `json:"message"`
	Kind    string         `json:"kind,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

func jsonError(msg string, jsonErr error) string {
	// json.Marshal escapes both strings
	msgBytes, _ := json.Marshal(msg)
	errBytes, _ := json.Marshal(jsonErr.Error())
	return fmt.Sprintf(`{"message":%s,"data":{"json_error":%s}}`, msgBytes, errBytes)
}

// MarshalError renders an Error. If marshaling fails the result is a
// hand built blob noting the failure, which indicates a bug.
func MarshalError(e Error) string {
	bits, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return jsonError(e.Message, err)
	}
	return string(bits)
}

// WriteError writes e to w.
func WriteError(w io.Writer, e Error) error {
	_, err := fmt.Fprintln(w, MarshalError(e))
	return err
}

// Write writes obj to w as indented JSON.
func Write(w io.Writer, obj any) error {
	bits, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	_, err = fmt.Fprintln(w, string(bits))
	return err
}

// WriteLine writes obj to w as a single JSON line.
func WriteLine(w io.Writer, obj any) error {
	return json.NewEncoder(w).Encode(obj)
}
