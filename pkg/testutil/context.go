package testutil

import (
	"net/http"
	"time"

	id "ncc/pkg/domain"
	"ncc/pkg/requestcontext"
)

// WithUser marks the request as authenticated the way the auth middleware
// does. An empty userID leaves the request anonymous.
func WithUser(req *http.Request, userID id.UserID, email string) *http.Request {
	if userID == "" {
		return req
	}
	ctx := requestcontext.WithUserID(req.Context(), userID)
	if email != "" {
		ctx = requestcontext.WithUserEmail(ctx, email)
	}
	return req.WithContext(ctx)
}

// WithRequestTime pins requestcontext.Now for the request.
func WithRequestTime(req *http.Request, at time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), at))
}
