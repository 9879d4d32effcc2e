/*
Package api exposes the REST surface: authentication, projects,
generations, credential management and operational endpoints, mounted on
a chi router.

Every response uses one envelope, {success, data | error}, with the PIN
endpoints adding isBlocked and attemptsRemaining. Handlers never leak
ownership: a resource that exists but belongs to someone else is
reported exactly like one that does not exist.

Request flow through the middleware stack:

	request → request ID → logging → recover → CORS
	        → rate limit (100 req / 15 min per IP)
	        → 10MB body cap → JWT bearer auth → handler

/api/health and /api/metrics sit outside the auth group so probes and
scrapers work without a token.

Tokens are HS256 JWTs minted by TokenIssuer with a 14-day TTL; the same
verifier backs both the bearer middleware and the websocket gateway's
query-parameter handshake.
*/
package api
