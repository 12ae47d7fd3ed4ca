package apperror

var (
	ErrChannelNotFound = New(CodeNotFound, "channel not found")
	ErrMessageNotFound = New(CodeNotFound, "message not found")
	ErrUserNotFound    = New(CodeNotFound, "user not found")

	ErrNotChannelOwner  = New(CodePermissionDenied, "only the channel owner can change this channel")
	ErrNotMessageAuthor = New(CodePermissionDenied, "only the author can change this message")

	ErrEmptyContent     = New(CodeEmptyContent, "message text or image is required")
	ErrEmptyEmoji       = New(CodeEmptyInput, "emoji is required")
	ErrEmptyChannelName = New(CodeEmptyInput, "channel name is required")
	ErrEmptyCredentials = New(CodeEmptyInput, "username and password are required")

	ErrDuplicateChannelName    = New(CodeDuplicateName, "a channel with this name already exists")
	ErrUsernameTaken           = New(CodeDuplicateName, "username is already taken")
	ErrDefaultChannelProtected = New(CodeProtectedResource, "the default channel cannot be renamed or deleted")

	ErrPasswordMismatch   = New(CodeInvalidArgument, "passwords do not match")
	ErrInvalidColor       = New(CodeInvalidArgument, "avatar colors must be #RRGGBB")
	ErrStatusTooLong      = New(CodeInvalidArgument, "status message is too long")
	ErrInvalidImage       = New(CodeInvalidArgument, "unsupported image")
	ErrInvalidCredentials = New(CodeUnauthenticated, "invalid username or password")
	ErrUnauthenticated    = New(CodeUnauthenticated, "login required")
)
