package usercontext

// Context keys stored in fiber locals
const (
	KeyUserContext = "USER_CONTEXT"
)
