package model

import "github.com/golang-jwt/jwt/v5"

// DirectorClaims are JWT claims for the director console
type DirectorClaims struct {
	DirectorID string `json:"directorId"`
	jwt.RegisteredClaims
}

// LoginRequest is the request body for director login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned after successful login
type LoginResponse struct {
	Token      string `json:"token"`
	DirectorID string `json:"directorId"`
}
