// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/go-social-auth/internal/models"
)

// CreateFollow inserts edge. Returns false if the edge already existed.
func (r *Repository) CreateFollow(ctx context.Context, edge models.FollowEdge) (bool, error) {
	res, err := r.db.NamedExecContext(ctx,
		`INSERT INTO follows (follower_id, followed_id) VALUES (:follower_id, :followed_id) ON CONFLICT DO NOTHING`,
		edge)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// DeleteFollow removes the edge. Returns false if no edge existed.
func (r *Repository) DeleteFollow(ctx context.Context, edge models.FollowEdge) (bool, error) {
	res, err := r.db.NamedExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = :follower_id AND followed_id = :followed_id`,
		edge)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// FollowExists checks whether edge is stored.
func (r *Repository) FollowExists(ctx context.Context, edge models.FollowEdge) (bool, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT count(*) FROM follows WHERE follower_id = ? AND followed_id = ?`,
		edge.FollowerID, edge.FollowedID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountFollowers returns how many users follow userID.
func (r *Repository) CountFollowers(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM follows WHERE followed_id = ?`, userID)
	return count, err
}

// CountFollowing returns how many users userID follows.
func (r *Repository) CountFollowing(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM follows WHERE follower_id = ?`, userID)
	return count, err
}
