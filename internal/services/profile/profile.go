// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package profile manages public profiles and the follow graph.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"codeberg.org/oliverandrich/go-social-auth/internal/models"
	"codeberg.org/oliverandrich/go-social-auth/internal/repository"
	"codeberg.org/oliverandrich/go-social-auth/internal/services/auth"
)

var (
	ErrUsernameTaken         = errors.New("username already taken")
	ErrInvalidUsernameFormat = errors.New("invalid username format")
	ErrCannotFollowSelf      = errors.New("cannot follow yourself")
)

// SearchLimit caps the number of users returned by a name search.
const SearchLimit = 50

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{4,15}$`)
	hasLetter       = regexp.MustCompile(`[A-Za-z]`)
)

// ValidUsername reports whether username is a well-formed handle: 4 to 15
// letters, digits or underscores, with at least one letter.
func ValidUsername(username string) bool {
	return usernamePattern.MatchString(username) && hasLetter.MatchString(username)
}

// Outcome is the non-error result of a follow graph change.
type Outcome int

const (
	OutcomeFollowed Outcome = iota
	OutcomeAlreadyFollowing
	OutcomeUnfollowed
	OutcomeNotFollowing
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFollowed:
		return "followed"
	case OutcomeAlreadyFollowing:
		return "already_following"
	case OutcomeUnfollowed:
		return "unfollowed"
	case OutcomeNotFollowing:
		return "not_following"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Store is the storage the profile service needs.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, patch models.UserPatch) error
	SearchUsersByName(ctx context.Context, substr string, limit int) ([]models.User, error)
	CreateFollow(ctx context.Context, edge models.FollowEdge) (bool, error)
	DeleteFollow(ctx context.Context, edge models.FollowEdge) (bool, error)
	FollowExists(ctx context.Context, edge models.FollowEdge) (bool, error)
	CountFollowers(ctx context.Context, userID string) (int64, error)
	CountFollowing(ctx context.Context, userID string) (int64, error)
}

// Profile is a user together with the size of their follow graph.
type Profile struct {
	*models.User
	Followers int64 `json:"followers"`
	Following int64 `json:"following"`
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetProfile returns the profile of a user.
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	followers, err := s.store.CountFollowers(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count followers: %w", err)
	}
	following, err := s.store.CountFollowing(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count following: %w", err)
	}
	return &Profile{User: user, Followers: followers, Following: following}, nil
}

// UpdateProfile applies the supplied fields. A new username is checked for
// uniqueness and then format before anything is written. Keeping the
// current username is not a conflict.
func (s *Service) UpdateProfile(ctx context.Context, userID string, patch models.UserPatch) (*models.User, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if patch.Username != nil {
		username := strings.TrimSpace(*patch.Username)
		patch.Username = &username
		if user.Username == nil || *user.Username != username {
			if err := s.checkUsername(ctx, username); err != nil {
				return nil, err
			}
		}
	}
	trim(patch.Name, patch.Bio, patch.Location, patch.Website)

	if patch.IsEmpty() {
		return user, nil
	}

	if err := s.store.UpdateUser(ctx, user.ID, patch); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, ErrUsernameTaken
		case errors.Is(err, repository.ErrNotFound):
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	slog.Info("profile_updated", "user_id", user.ID)
	return s.loadUser(ctx, user.ID)
}

func (s *Service) checkUsername(ctx context.Context, username string) error {
	_, err := s.store.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		return ErrUsernameTaken
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("failed to check username: %w", err)
	}
	if !ValidUsername(username) {
		return ErrInvalidUsernameFormat
	}
	return nil
}

func trim(fields ...*string) {
	for _, f := range fields {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
}

// Follow creates the edge follower -> followed.
func (s *Service) Follow(ctx context.Context, followerID, followedID string) (Outcome, error) {
	if followerID == followedID {
		return 0, ErrCannotFollowSelf
	}
	if _, err := s.loadUser(ctx, followedID); err != nil {
		return 0, err
	}

	created, err := s.store.CreateFollow(ctx, models.FollowEdge{FollowerID: followerID, FollowedID: followedID})
	if err != nil {
		return 0, fmt.Errorf("failed to follow: %w", err)
	}
	if !created {
		return OutcomeAlreadyFollowing, nil
	}

	slog.Info("user_followed", "follower_id", followerID, "followed_id", followedID)
	return OutcomeFollowed, nil
}

// Unfollow removes the edge follower -> followed. A missing edge is not an
// error.
func (s *Service) Unfollow(ctx context.Context, followerID, followedID string) (Outcome, error) {
	deleted, err := s.store.DeleteFollow(ctx, models.FollowEdge{FollowerID: followerID, FollowedID: followedID})
	if err != nil {
		return 0, fmt.Errorf("failed to unfollow: %w", err)
	}
	if !deleted {
		return OutcomeNotFollowing, nil
	}

	slog.Info("user_unfollowed", "follower_id", followerID, "followed_id", followedID)
	return OutcomeUnfollowed, nil
}

// IsFollowing reports whether follower follows followed.
func (s *Service) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	ok, err := s.store.FollowExists(ctx, models.FollowEdge{FollowerID: followerID, FollowedID: followedID})
	if err != nil {
		return false, fmt.Errorf("failed to check follow: %w", err)
	}
	return ok, nil
}

// SearchByName returns users whose display name contains query, ignoring
// case. A blank query matches nobody.
func (s *Service) SearchByName(ctx context.Context, query string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.User{}, nil
	}
	users, err := s.store.SearchUsersByName(ctx, query, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	return users, nil
}
