package errs

// Error codes grouped by the failure class they belong to. Protocol errors
// leave the connection open; storage errors abort a single send; transport
// errors tear the connection down.
const (
	ServerInternalError = 500

	// protocol
	NotIdentifiedError  = 1101
	MalformedFrameError = 1102
	EmptyMessageError   = 1103
	UnknownCommandError = 1104
	AlreadyBoundError   = 1105

	// storage
	StorageWriteError = 1201

	// auth (REST surface)
	TokenInvalidError = 1301
)

var (
	ErrNotIdentified  = NewCodeError(NotIdentifiedError, "command requires identify")
	ErrMalformedFrame = NewCodeError(MalformedFrameError, "malformed frame")
	ErrEmptyMessage   = NewCodeError(EmptyMessageError, "message has no content")
	ErrUnknownCommand = NewCodeError(UnknownCommandError, "unknown command")
	ErrAlreadyBound   = NewCodeError(AlreadyBoundError, "connection already identified")
	ErrStorage        = NewCodeError(StorageWriteError, "message store write failed")
	ErrTokenInvalid   = NewCodeError(TokenInvalidError, "invalid token")
	ErrInternal       = NewCodeError(ServerInternalError, "internal error")
)
