// Package auth provides optional bearer-token authentication.
//
// When a JWT secret is configured, HTTP routes and the WebSocket upgrade are
// wrapped with Middleware. Tokens are HS256 JWTs whose "sub" claim names the
// principal:
//
//	Authorization: Bearer <jwt>
//	GET /ws?token=<jwt>          (browsers cannot set headers on upgrade)
//
// Handlers read the principal with PrincipalFromContext.
package auth
