package middleware

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Dosada05/event-registration/models"
	"github.com/golang-jwt/jwt/v4"
)

const (
	jwtClaimUserID = "user_id"
	jwtClaimRole   = "role"
)

func WithAuth(ctx context.Context, auth models.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, auth)
}

func GetAuthFromContext(ctx context.Context) (models.AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey).(models.AuthContext)
	return auth, ok
}

func authFromClaims(claims jwt.MapClaims) (models.AuthContext, error) {
	userIDClaim, ok := claims[jwtClaimUserID]
	if !ok {
		return models.AuthContext{}, fmt.Errorf("missing '%s' claim in token", jwtClaimUserID)
	}

	var participantID string
	switch v := userIDClaim.(type) {
	case string:
		participantID = v
	case float64:
		if v != float64(int64(v)) || v <= 0 {
			return models.AuthContext{}, fmt.Errorf("invalid user ID value in '%s' claim: %v", jwtClaimUserID, v)
		}
		participantID = strconv.FormatInt(int64(v), 10)
	default:
		return models.AuthContext{}, fmt.Errorf("invalid type for '%s' claim: expected string or number, got %T", jwtClaimUserID, userIDClaim)
	}
	if participantID == "" {
		return models.AuthContext{}, fmt.Errorf("empty '%s' claim", jwtClaimUserID)
	}

	role := models.RoleParticipant
	if roleClaim, ok := claims[jwtClaimRole]; ok {
		roleStr, ok := roleClaim.(string)
		if !ok {
			return models.AuthContext{}, fmt.Errorf("invalid type for '%s' claim: expected string, got %T", jwtClaimRole, roleClaim)
		}
		role = models.UserRole(roleStr)
	}
	switch role {
	case models.RoleParticipant, models.RoleOrganizer, models.RoleAdmin:
	default:
		return models.AuthContext{}, fmt.Errorf("invalid role value in claim: %q", role)
	}

	return models.AuthContext{ParticipantID: participantID, Role: role}, nil
}
