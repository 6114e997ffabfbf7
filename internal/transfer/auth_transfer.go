package transfer

import "github.com/golang-jwt/jwt/v5"

type CustomClaims struct {
	UserID      string `json:"user_id"`
	WorkspaceID int64  `json:"workspace_id"`
	jwt.RegisteredClaims
}
