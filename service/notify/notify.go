// Package notify fans out push notifications. Every delivery is best
// effort: failures are logged and never propagate to the operation
// that triggered them.
package notify

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aux-fm/auxio/db"
	"github.com/aux-fm/auxio/models"
)

// Sender is the push delivery boundary.
type Sender interface {
	Send(ctx context.Context, pushToken, title, body string, data map[string]string) error
}

// LogSender is the default Sender: it only logs. Real delivery is an
// external concern wired in at startup.
type LogSender struct {
	logger *log.Logger
}

func NewLogSender() *LogSender {
	return &LogSender{logger: log.New(os.Stdout, "push: ", log.LstdFlags|log.Lmsgprefix)}
}

func (s *LogSender) Send(ctx context.Context, pushToken, title, body string, data map[string]string) error {
	s.logger.Printf("to=%s title=%q body=%q", pushToken, title, body)
	return nil
}

const sendTimeout = 10 * time.Second

type Notifier struct {
	db     *db.DB
	sender Sender
	logger *log.Logger
}

func New(database *db.DB, sender Sender) *Notifier {
	return &Notifier{
		db:     database,
		sender: sender,
		logger: log.New(os.Stdout, "notify: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// NotifyUser sends one notification to one user. Users without a push
// token are skipped silently.
func (n *Notifier) NotifyUser(userID int64, title, body string, data map[string]string) {
	user, err := n.db.GetUserByID(userID)
	if err != nil {
		n.logger.Printf("lookup for user %d failed: %v", userID, err)
		return
	}

	if user == nil || user.PushToken == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := n.sender.Send(ctx, *user.PushToken, title, body, data); err != nil {
		n.logger.Printf("send to user %d failed: %v", userID, err)
	}
}

// NotifyUsers sends the same notification to each listed user.
func (n *Notifier) NotifyUsers(userIDs []int64, title, body string, data map[string]string) {
	for _, id := range userIDs {
		n.NotifyUser(id, title, body, data)
	}
}

// NotifyReveal announces a cycle reveal to every registered device.
func (n *Notifier) NotifyReveal(cycle *models.Cycle) {
	tokens, err := n.db.GetPushTokens()
	if err != nil {
		n.logger.Printf("push token listing failed: %v", err)
		return
	}

	n.logger.Printf("announcing cycle %d to %d devices", cycle.Number, len(tokens))

	for _, token := range tokens {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := n.sender.Send(ctx, token, "aux", "Time to aux. What are you listening to?", map[string]string{
			"type": "reveal",
		})
		cancel()
		if err != nil {
			n.logger.Printf("reveal send failed: %v", err)
		}
	}
}
