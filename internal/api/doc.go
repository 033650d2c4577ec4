// Package api serves the storefront's HTTP API on echo.
//
// # Routes
//
// Catalog reads (/api/products, /api/categories) and the affiliate redirect
// are public. Photo, try-on and subscription routes require a bearer token;
// the Stripe webhook authenticates by signature instead.
//
// # Errors
//
// Every error reaches clients as {"error": message}. Messages carried by a
// services.UserError are shown verbatim; the status code comes from the
// error's marker (validation and quota 400, not found 404, forbidden 403,
// unauthorized 401, configuration 503, anything else 500).
//
// # Middleware
//
// Recover, request id, structured request logging and Prometheus metrics wrap
// every route. POST /api/tryon is additionally rate limited per user.
package api
