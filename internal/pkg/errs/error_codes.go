/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Messaging Business Logic Errors
const (
	// ErrMessageEmpty indicates that an outbound message carried no content.
	ErrMessageEmpty = 2201

	// ErrMessageContentTooLong indicates that the message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2202
)

// 3xxx: Identity and Session Errors
const (
	// ErrUnauthorized indicates a missing, malformed, or expired identity token.
	ErrUnauthorized = 3101

	// ErrSessionReplaced indicates that the connection was closed because the same
	// spoke user opened a newer connection.
	ErrSessionReplaced = 3102
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStoreFailure indicates that the conversation store rejected or failed a
	// persistence operation. The triggering operation is aborted; nothing is broadcast.
	ErrStoreFailure = 5001
)
