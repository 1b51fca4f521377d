// Package services defines the business logic around delivery confirmation,
// the chat directory and the AI assistant. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// Translation into user-facing chat replies or HTTP status codes is performed
// by the transport and handler layers.
package services

import "errors"

// Delivery-related errors.
var (
	// ErrDeliveryNotFound indicates that no firing has been recorded for the
	// reminder being confirmed.
	ErrDeliveryNotFound = errors.New("delivery record not found")

	// ErrStaleConfirmation is returned when a confirmation refers to a firing
	// that has since been superseded by a newer one. It is informational: the
	// record is left untouched and nothing else is aborted.
	ErrStaleConfirmation = errors.New("confirmation refers to an outdated firing")
)

// Directory-related errors.
var (
	// ErrChatNotFound indicates that a username or chat id is not in the
	// directory of chats the bot has seen.
	ErrChatNotFound = errors.New("chat not found")

	// ErrDestinationUnreachable is returned when a reminder would be delivered
	// to a chat the bot has no record of being able to reach.
	ErrDestinationUnreachable = errors.New("destination chat is not reachable")

	// ErrNoDefaultGroup is returned when "To Group" is chosen but no default
	// group is configured.
	ErrNoDefaultGroup = errors.New("no default group configured")
)

// Assistant-related errors.
var (
	// ErrEmptyPrompt is returned when an assistant question is blank.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrTooLong is returned when an assistant question exceeds the
	// configured maximum length.
	ErrTooLong = errors.New("prompt too long")

	// ErrRateLimited is returned when a chat asks the assistant too often.
	ErrRateLimited = errors.New("too many assistant requests")

	// ErrAssistantUnavailable wraps any failure of the upstream assistant.
	ErrAssistantUnavailable = errors.New("assistant unavailable")
)
