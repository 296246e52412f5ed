package api

import (
	"net/http"
	"strings"

	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ticket-decision-engine/internal/review"
)

// GatewayClaims reads the JWT authorizer claims that httpadapter attaches
// to the request context. It returns nil outside API Gateway.
func GatewayClaims(r *http.Request) map[string]string {
	rc, ok := core.GetAPIGatewayV2ContextFromContext(r.Context())
	if !ok || rc.Authorizer == nil || rc.Authorizer.JWT == nil {
		return nil
	}
	return rc.Authorizer.JWT.Claims
}

// UserFromClaims builds the caller identity. Both email and sub are
// required; username falls back to the local part of the email.
func UserFromClaims(claims map[string]string) *review.UserContext {
	if len(claims) == 0 {
		return nil
	}
	email, sub := claims["email"], claims["sub"]
	if email == "" || sub == "" {
		log.Warn().Bool("email", email != "").Bool("userId", sub != "").Msg("Missing required JWT claims")
		return nil
	}
	username := claims["cognito:username"]
	if username == "" {
		username = claims["username"]
	}
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	return &review.UserContext{Email: email, UserID: sub, Username: username}
}
