package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/config"
	"github.com/phrazzld/genflow/internal/service/auth"
)

// printToken writes a bearer token for userID to w. Users are managed
// outside genflow; this is how operators mint tokens for them.
func printToken(ctx context.Context, cfg config.AuthConfig, userID string, w io.Writer) error {
	id, err := uuid.Parse(userID)
	if err != nil || id == uuid.Nil {
		return fmt.Errorf("invalid user ID %q", userID)
	}

	jwtService, err := auth.NewJWTService(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	token, err := jwtService.GenerateToken(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	_, err = fmt.Fprintln(w, token)
	return err
}
