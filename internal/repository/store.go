// Package repository is the persistence layer. Store is implemented over PostgreSQL
// here and in memory by repository/memory.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chatterbox/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

// Queries is every read and write the services need. All methods run inside whatever
// transaction the receiver is bound to.
type Queries interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	// FindUsernames returns the subset of names that belong to existing users.
	FindUsernames(ctx context.Context, names []string) ([]string, error)
	UpdateProfile(ctx context.Context, u *model.User) error

	CreateChannel(ctx context.Context, c *model.Channel) error
	GetChannelByID(ctx context.Context, id string) (*model.Channel, error)
	GetChannelByName(ctx context.Context, name string) (*model.Channel, error)
	ListChannels(ctx context.Context) ([]model.Channel, error)
	SearchChannels(ctx context.Context, keyword string) ([]model.Channel, error)
	RenameChannel(ctx context.Context, id, name string, updatedAt time.Time) error
	// DeleteChannel removes the channel with its memberships, messages and their reactions,
	// returning the image references the removed messages held.
	DeleteChannel(ctx context.Context, id string) ([]string, error)

	UpsertMember(ctx context.Context, m *model.ChannelMember) error
	GetMember(ctx context.Context, channelID, userID string) (*model.ChannelMember, error)

	CreateMessage(ctx context.Context, m *model.Message) error
	GetMessageByID(ctx context.Context, id string) (*model.Message, error)
	// ListMessages returns the channel's messages oldest first with Username filled.
	ListMessages(ctx context.Context, channelID string) ([]model.MessageView, error)
	// SearchMessages matches content case-insensitively, newest first.
	SearchMessages(ctx context.Context, channelID, keyword string) ([]model.MessageView, error)
	UpdateMessageContent(ctx context.Context, id, content string, updatedAt time.Time) error
	// DeleteMessage removes the message and its reactions.
	DeleteMessage(ctx context.Context, id string) error

	HasReaction(ctx context.Context, messageID, userID, emoji string) (bool, error)
	AddReaction(ctx context.Context, r *model.Reaction) error
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) error
	// CountReactions groups by emoji, ordered by each emoji's first reaction.
	CountReactions(ctx context.Context, messageID string) ([]model.ReactionCount, error)
	CountReactionsFor(ctx context.Context, messageIDs []string) (map[string][]model.ReactionCount, error)
}

type Store interface {
	Queries
	// WithTx runs fn in one transaction, committed only if fn returns nil.
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db querier
}

type PostgresStore struct {
	*queries
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{queries: &queries{db: pool}, pool: pool}
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&queries{db: tx})
	})
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// wrap maps driver errors onto the package sentinels.
func wrap(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns a keyword into an ILIKE substring pattern.
func likePattern(keyword string) string {
	return "%" + likeEscaper.Replace(keyword) + "%"
}
