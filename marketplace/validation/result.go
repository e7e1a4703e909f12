// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package validation produces and combines app validation results.
package validation

import (
	"encoding/json"

	"github.com/zeebo/errs"
)

// Error is the default validation errs class.
var Error = errs.Class("validation")

// Message types.
const (
	TypeError   = "error"
	TypeWarning = "warning"
	TypeNotice  = "notice"
)

// Message is a single validation finding.
type Message struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Tier    int    `json:"tier"`
	UID     string `json:"uid,omitempty"`
}

// Result is the validation document stored on uploads and files.
type Result struct {
	Errors   int                    `json:"errors"`
	Warnings int                    `json:"warnings"`
	Notices  int                    `json:"notices"`
	Success  bool                   `json:"success"`
	Messages []Message              `json:"messages"`
	Prelim   bool                   `json:"prelim,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ParseResult decodes a stored validation document. An empty string
// yields nil.
func ParseResult(raw string) (*Result, error) {
	if raw == "" {
		return nil, nil
	}
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, Error.Wrap(err)
	}
	return &result, nil
}

// JSON encodes the result.
func (result *Result) JSON() string {
	if result.Messages == nil {
		result.Messages = []Message{}
	}
	data, err := json.Marshal(result)
	if err != nil {
		// a Result always encodes
		panic(err)
	}
	return string(data)
}

// Add appends a message and updates the counters.
func (result *Result) Add(kind, message string) {
	result.Messages = append(result.Messages, Message{Type: kind, Message: message, Tier: 1})
	switch kind {
	case TypeError:
		result.Errors++
		result.Success = false
	case TypeWarning:
		result.Warnings++
	case TypeNotice:
		result.Notices++
	}
}

// ErrorMessages returns the text of every error message.
func (result *Result) ErrorMessages() []string {
	var messages []string
	for _, m := range result.Messages {
		if m.Type == TypeError {
			messages = append(messages, m.Message)
		}
	}
	return messages
}

// Failed builds a preliminary failing result. Messages already present
// in existing are kept.
func Failed(existing *Result, messages ...string) *Result {
	result := &Result{Prelim: true}
	if existing != nil {
		result.Messages = append(result.Messages, existing.Messages...)
	}
	for _, message := range messages {
		result.Messages = append(result.Messages, Message{Type: TypeError, Message: message, Tier: 1})
	}
	for _, m := range result.Messages {
		if m.Type == TypeError {
			result.Errors++
		}
	}
	return result
}

// Merge folds a preliminary result into result. Results that are not
// preliminary are ignored.
func Merge(result, prelim *Result) *Result {
	if prelim == nil || !prelim.Prelim {
		return result
	}
	result.Messages = append(result.Messages, prelim.Messages...)
	if result.Success {
		result.Success = prelim.Success
	}
	result.Errors += prelim.Errors
	return result
}
