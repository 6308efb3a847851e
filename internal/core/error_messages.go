// Error codes reference.
//
// This file maps technical errors to user-friendly messages with codes for
// support reference. Operators quote the code when reporting a problem.
//
// # Generation Errors (GEN001-GEN099)
//
//	GEN001 - Batch not found
//	GEN002 - Unknown guide
//	GEN003 - Invalid period (want YYYY-MM)
//	GEN004 - Guide not planned for this batch
//	GEN005 - Batch failed; start a new batch
//	GEN006 - Generation not completed yet
//	GEN007 - Too many generations in progress
//	GEN008 - Batch has no artifacts
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Blocking issues present; deliverable refused
//	VAL002 - Warnings present and not confirmed
//
// # Sealing Errors (SEAL001-SEAL099)
//
//	SEAL001 - Encryption key has the wrong length
//	SEAL002 - Initialization vector has the wrong length
//	SEAL003 - Sealed container is corrupt or the key is wrong
//	SEAL004 - Archive does not hold exactly one entry
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Schema source missing or malformed
//	CFG002 - Unsupported text encoding
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection refused
//	DB002 - Connection reset
//	DB003 - Timeout
//	DB004 - Serialization failure or deadlock
//
// # I/O Errors (IO001-IO099)
//
//	IO001 - Output directory not writable
//	IO002 - Disk full
//	IO003 - Request cancelled
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: check application logs
//
// # Matching
//
// Sentinel errors are matched first with errors.Is, so wrapped errors keep
// their code. Anything else falls through to case-insensitive substring
// patterns; the first match wins.
package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/giisexport/internal/schema"
	"github.com/JonMunkholm/giisexport/internal/seal"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

// sentinelMessages maps known error values to user messages. Checked in
// order with errors.Is before any pattern.
var sentinelMessages = []sentinelMessage{
	{ErrBatchNotFound, UserMessage{"Batch not found", "Check the batch id or create a new batch", "GEN001"}},
	{ErrUnknownGuide, UserMessage{"Unknown guide", "Use one of the registered guide codes (LES, CDT, CEX)", "GEN002"}},
	{ErrInvalidPeriod, UserMessage{"Invalid reporting period", "Use the YYYY-MM format", "GEN003"}},
	{ErrGuideNotPlanned, UserMessage{"Guide is not part of this batch", "Create a batch that includes this guide", "GEN004"}},
	{ErrBatchFailed, UserMessage{"Batch failed during generation", "Create a new batch for the period", "GEN005"}},
	{ErrBatchNotCompleted, UserMessage{"Generation has not finished for every guide", "Generate the remaining guides first", "GEN006"}},
	{ErrTooManyGenerations, UserMessage{"System is busy with other generations", "Please wait a moment and try again", "GEN007"}},
	{ErrNoArtifacts, UserMessage{"Batch has no generated files", "Generate at least one guide first", "GEN008"}},
	{ErrBlockersPresent, UserMessage{"Some rows have blocking validation issues", "Review the excluded rows report and correct the records", "VAL001"}},
	{ErrWarningsUnconfirmed, UserMessage{"Validation warnings need confirmation", "Review the warnings and confirm to continue", "VAL002"}},
	{seal.ErrKeyLength, UserMessage{"Encryption key has the wrong length", "Configure a 24-byte key (48 hex characters)", "SEAL001"}},
	{seal.ErrIVLength, UserMessage{"Initialization vector has the wrong length", "Use an 8-byte IV", "SEAL002"}},
	{seal.ErrCiphertext, UserMessage{"Sealed file is corrupt or the key does not match", "Check the key and the file", "SEAL003"}},
	{seal.ErrArchive, UserMessage{"Archive does not hold exactly one entry", "Rebuild the deliverable", "SEAL004"}},
	{schema.ErrSchemaInvalid, UserMessage{"Guide schema is missing or malformed", "Check the schema directory configuration", "CFG001"}},
	{seal.ErrEncoding, UserMessage{"Unsupported text encoding", "Use windows-1252 or utf-8 in the guide schema", "CFG002"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so more specific patterns come first.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Errors (DB001-DB004)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try again later",
			Code:    "DB003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try again later",
			Code:    "DB003",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "could not serialize",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},

	// =========================================================================
	// I/O Errors (IO001-IO003)
	// =========================================================================
	{
		pattern: "permission denied",
		msg: UserMessage{
			Message: "Output directory is not writable",
			Action:  "Check EXPORT_OUTPUT_DIR permissions",
			Code:    "IO001",
		},
	},
	{
		pattern: "read-only file system",
		msg: UserMessage{
			Message: "Output directory is not writable",
			Action:  "Check EXPORT_OUTPUT_DIR permissions",
			Code:    "IO001",
		},
	},
	{
		pattern: "no space left",
		msg: UserMessage{
			Message: "Disk is full",
			Action:  "Free space on the export volume",
			Code:    "IO002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "IO003",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
// This is the fallback for unexpected errors. Support staff should check
// application logs for the original technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Known sentinels win over text patterns. If nothing matches, a generic
// fallback message with code ERR000 is returned.
//
// Example:
//
//	err := fmt.Errorf("build deliverable: %w", ErrBlockersPresent)
//	msg := MapError(err)
//	// msg.Code == "VAL001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
//
// Example output: "Batch not found (Code: GEN001). Check the batch id or create a new batch"
//
// This is the primary function for displaying errors to end users.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
// Use this to decide whether to show the raw error or the mapped user message.
//
// Example:
//
//	if IsUserFacing(err) {
//	    showToUser(FormatUserError(err))
//	} else {
//	    log.Error(err) // Log technical error
//	    showToUser("An error occurred. Please try again.")
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// The returned UserError preserves the original technical error for logging via Unwrap(),
// while providing a clean user message via Error().
//
// Returns nil if err is nil.
//
// Example:
//
//	ue := NewUserError(dbErr)
//	log.Error(ue.Technical)          // Log original error
//	fmt.Println(ue.Error())           // Show "Batch not found"
//	fmt.Println(ue.User.Code)         // Show "GEN001"
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
