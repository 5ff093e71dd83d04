package common

// AuthorizationHeaderName carries "Bearer <token>" on REST requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token in AuthorizationHeaderName.
const BearerPrefix = "Bearer "
