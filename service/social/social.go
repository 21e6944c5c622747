// Package social maintains the friends graph: requests, acceptance,
// and the reconciliation pass that heals asymmetric edges.
package social

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aux-fm/auxio/db"
	"github.com/aux-fm/auxio/errs"
	"github.com/aux-fm/auxio/models"
)

// Notifier delivers best-effort notifications.
type Notifier interface {
	NotifyUser(userID int64, title, body string, data map[string]string)
}

type Service struct {
	db       *db.DB
	notifier Notifier
	logger   *log.Logger
}

func NewService(database *db.DB, notifier Notifier) *Service {
	return &Service{
		db:       database,
		notifier: notifier,
		logger:   log.New(os.Stdout, "social: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// SendFriendRequest records a pending request on the target user.
// Re-sending an already pending request is a no-op, not an error.
func (s *Service) SendFriendRequest(ctx context.Context, from *models.User, toUsername string) error {
	const op errs.Op = "social.SendFriendRequest"

	if from.Username == nil || *from.Username == "" {
		return errs.E(op, errs.Invalid, "set a username before sending friend requests")
	}

	target, err := s.db.GetUserByUsername(toUsername)
	if err != nil {
		return errs.E(op, err)
	}
	if target == nil {
		return errs.E(op, errs.UnknownUser)
	}
	if target.ID == from.ID {
		return errs.E(op, errs.Invalid, "cannot friend yourself")
	}

	already, err := s.db.AreFriends(from.ID, target.ID)
	if err != nil {
		return errs.E(op, err)
	}
	if already {
		return nil
	}

	if err := s.db.AddFriendRequest(target.ID, *from.Username); err != nil {
		return errs.E(op, err)
	}

	if s.notifier != nil {
		go s.notifier.NotifyUser(target.ID, "aux", *from.Username+" wants to be friends",
			map[string]string{"type": "friend-request"})
	}

	return nil
}

// AcceptFriendRequest resolves a pending request into symmetric friend
// edges on both users.
func (s *Service) AcceptFriendRequest(ctx context.Context, user *models.User, requesterUsername string) error {
	const op errs.Op = "social.AcceptFriendRequest"

	pending, err := s.db.HasFriendRequest(user.ID, requesterUsername)
	if err != nil {
		return errs.E(op, err)
	}
	if !pending {
		return errs.E(op, errs.NoSuchRequest)
	}

	requester, err := s.db.GetUserByUsername(requesterUsername)
	if err != nil {
		return errs.E(op, err)
	}
	if requester == nil {
		// The requester deleted their account; clear the dangling entry.
		if err := s.db.RemoveFriendRequest(user.ID, requesterUsername); err != nil {
			return errs.E(op, err)
		}
		return errs.E(op, errs.NoSuchRequest)
	}

	if err := s.db.AcceptFriendRequest(user.ID, requester.ID, requesterUsername); err != nil {
		return errs.E(op, err)
	}

	if s.notifier != nil && user.Username != nil {
		go s.notifier.NotifyUser(requester.ID, "aux", *user.Username+" accepted your friend request",
			map[string]string{"type": "friend-accept"})
	}

	return nil
}

// RejectFriendRequest clears a pending request without creating edges.
func (s *Service) RejectFriendRequest(ctx context.Context, user *models.User, requesterUsername string) error {
	const op errs.Op = "social.RejectFriendRequest"

	pending, err := s.db.HasFriendRequest(user.ID, requesterUsername)
	if err != nil {
		return errs.E(op, err)
	}
	if !pending {
		return errs.E(op, errs.NoSuchRequest)
	}

	if err := s.db.RemoveFriendRequest(user.ID, requesterUsername); err != nil {
		return errs.E(op, err)
	}

	return nil
}

// Friends lists the user's friends as public profiles.
func (s *Service) Friends(ctx context.Context, user *models.User) ([]models.PublicProfile, error) {
	const op errs.Op = "social.Friends"

	friends, err := s.db.ListFriends(user.ID)
	if err != nil {
		return nil, errs.E(op, err)
	}

	profiles := make([]models.PublicProfile, 0, len(friends))
	for _, f := range friends {
		profiles = append(profiles, f.Public())
	}

	return profiles, nil
}

// PendingRequests lists the usernames waiting on the user's decision.
func (s *Service) PendingRequests(ctx context.Context, user *models.User) ([]string, error) {
	const op errs.Op = "social.PendingRequests"

	requests, err := s.db.ListFriendRequests(user.ID)
	if err != nil {
		return nil, errs.E(op, err)
	}

	return requests, nil
}

// Repair heals asymmetric friend edges by inserting the missing
// direction. It is idempotent and safe to run on a timer; it never
// deletes the surviving edge.
func (s *Service) Repair(ctx context.Context) (int, error) {
	const op errs.Op = "social.Repair"

	edges, err := s.db.AsymmetricFriendEdges()
	if err != nil {
		return 0, errs.E(op, err)
	}

	healed := 0
	for _, edge := range edges {
		if err := s.db.AddFriendEdge(edge[1], edge[0]); err != nil {
			s.logger.Printf("healing edge %d->%d: %v", edge[1], edge[0], err)
			continue
		}
		healed++
	}

	if healed > 0 {
		s.logger.Printf("repaired %d asymmetric friend edges", healed)
	}

	return healed, nil
}

// StartRepairLoop runs Repair on an interval until the context ends.
func (s *Service) StartRepairLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Repair(ctx); err != nil {
				s.logger.Printf("repair pass failed: %v", err)
			}
		}
	}
}
