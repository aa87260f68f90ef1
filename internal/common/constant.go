package common

// AuthorizationHeaderName carries the bearer token on HTTP requests.
const AuthorizationHeaderName = "Authorization"

// BearerScheme is the only authorization scheme accepted.
const BearerScheme = "Bearer"

// AccessTokenQueryParam is the query-string key used to pass a token during
// the WebSocket handshake, where browsers cannot set headers.
const AccessTokenQueryParam = "access_token"
