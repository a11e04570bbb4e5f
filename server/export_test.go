package server

// Aliases for tests living in the server_test package.
var (
	RecoveryMiddlewareForTest = recoveryMiddleware
	CorsMiddlewareForTest     = corsMiddleware
)
