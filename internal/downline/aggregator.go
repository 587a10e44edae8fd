// Package downline rebuilds the tree of users a referrer attracted, directly or
// transitively, for reporting.
package downline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mtscoaima/aima-sub007/internal/models"
)

const (
	DefaultMaxDepth = 5
	DefaultTimeout  = 5 * time.Second
)

type Status string

const (
	StatusActive   Status = "active"
	StatusPending  Status = "pending"
	StatusInactive Status = "inactive"
)

type DownlineNode struct {
	UserID       uuid.UUID       `json:"user_id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	JoinDate     time.Time       `json:"join_date"`
	Status       Status          `json:"status"`
	TotalPayment int64           `json:"total_payment"`
	Level        int             `json:"level"`
	Children     []*DownlineNode `json:"children"`
}

// ReferralSource returns the ACTIVE referred users of all given referrers in one call.
type ReferralSource interface {
	FindActiveReferredUsers(ctx context.Context, referrerIDs []uuid.UUID) ([]models.ReferredUser, error)
}

// PaymentSource returns lifetime completed payments per user in one call.
type PaymentSource interface {
	PaymentTotals(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

type Aggregator struct {
	referrals ReferralSource
	payments  PaymentSource
	maxDepth  int
	timeout   time.Duration
	log       *slog.Logger
}

// NewAggregator returns an Aggregator. Non-positive maxDepth and timeout take
// DefaultMaxDepth and DefaultTimeout.
func NewAggregator(referrals ReferralSource, payments PaymentSource, maxDepth int, timeout time.Duration, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Aggregator{referrals: referrals, payments: payments, maxDepth: maxDepth, timeout: timeout, log: log}
}

// BuildTree returns the direct referrals of userID with their descendants
// nested beneath them, at most maxDepth levels deep. The store is queried once
// per level plus once for payment totals.
func (a *Aggregator) BuildTree(ctx context.Context, userID uuid.UUID) ([]*DownlineNode, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	seen := map[uuid.UUID]bool{userID: true}
	byID := map[uuid.UUID]*DownlineNode{}
	var roots []*DownlineNode
	var all []uuid.UUID

	frontier := []uuid.UUID{userID}
	for level := 1; level <= a.maxDepth && len(frontier) > 0; level++ {
		users, err := a.referrals.FindActiveReferredUsers(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("downline level %d: %w", level, err)
		}
		var next []uuid.UUID
		for _, u := range users {
			if seen[u.UserID] {
				a.log.Warn("referral cycle in downline", "user_id", userID, "revisited", u.UserID, "level", level)
				continue
			}
			seen[u.UserID] = true

			node := &DownlineNode{
				UserID:   u.UserID,
				Name:     u.Name,
				Email:    MaskEmail(u.Email),
				JoinDate: u.JoinedAt,
				Status:   statusOf(u),
				Level:    level,
				Children: []*DownlineNode{},
			}
			byID[u.UserID] = node
			if parent, ok := byID[u.ReferrerID]; ok {
				parent.Children = append(parent.Children, node)
			} else {
				roots = append(roots, node)
			}
			next = append(next, u.UserID)
			all = append(all, u.UserID)
		}
		frontier = next
	}

	if len(all) == 0 {
		return []*DownlineNode{}, nil
	}
	totals, err := a.payments.PaymentTotals(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("downline payment totals: %w", err)
	}
	for id, n := range byID {
		n.TotalPayment = totals[id]
	}
	return roots, nil
}

func statusOf(u models.ReferredUser) Status {
	switch {
	case u.Disabled:
		return StatusInactive
	case u.ApprovalPending:
		return StatusPending
	default:
		return StatusActive
	}
}

// MaskEmail keeps the first three characters of the local part: abc***@domain.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***"
	}
	local, domain := email[:at], email[at+1:]
	r := []rune(local)
	if len(r) > 3 {
		r = r[:3]
	}
	return string(r) + "***@" + domain
}

type Summary struct {
	TotalMembers  int         `json:"total_members"`
	DirectMembers int         `json:"direct_members"`
	ActiveMembers int         `json:"active_members"`
	TotalPayment  int64       `json:"total_payment"`
	ByLevel       map[int]int `json:"by_level"`
}

func Summarize(roots []*DownlineNode) Summary {
	s := Summary{DirectMembers: len(roots), ByLevel: map[int]int{}}
	var walk func([]*DownlineNode)
	walk = func(nodes []*DownlineNode) {
		for _, n := range nodes {
			s.TotalMembers++
			s.ByLevel[n.Level]++
			s.TotalPayment += n.TotalPayment
			if n.Status == StatusActive {
				s.ActiveMembers++
			}
			walk(n.Children)
		}
	}
	walk(roots)
	return s
}
