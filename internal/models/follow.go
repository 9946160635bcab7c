// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

// FollowEdge is a directed follow relationship.
type FollowEdge struct {
	FollowerID string `db:"follower_id" json:"follower_id"`
	FollowedID string `db:"followed_id" json:"followed_id"`
}
