package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
	"github.com/secmon-lab/remedy/pkg/domain/model/issue"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/utils/clock"
	"github.com/secmon-lab/remedy/pkg/utils/logging"
)

const (
	issuePrefix    = "issue/"
	cooldownPrefix = "cooldown/"
)

// Badger is the durable repository backing the pipeline's shared state with
// an embedded BadgerDB. Each record is one key; Badger transactions give the
// atomic read-modify-write the lifecycle counters need, and synchronous
// writes make a crash resume from the last durably written state.
type Badger struct {
	db *badger.DB
	eb *goerr.Builder
}

var _ interfaces.Repository = &Badger{}

// cooldownValue is the stored form of one cooldown entry.
type cooldownValue struct {
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewBadger opens (or creates) the state database under dir. Pass an empty
// dir to run fully in memory, which tests use.
func NewBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithSyncWrites(true)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open state database",
			goerr.T(errs.TagConfiguration),
			goerr.V("dir", dir))
	}

	return &Badger{
		db: db,
		eb: goerr.NewBuilder(goerr.TV(errs.RepositoryKey, "badger")),
	}, nil
}

func (r *Badger) GetIssue(ctx context.Context, key types.IssueKey) (*issue.TrackedIssue, error) {
	var iss *issue.TrackedIssue
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(issuePrefix + key.String()))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return r.eb.Wrap(err, "failed to get issue", goerr.V("key", key))
		}
		return item.Value(func(val []byte) error {
			var decoded issue.TrackedIssue
			if err := json.Unmarshal(val, &decoded); err != nil {
				// Corrupted record: treat as absent rather than
				// failing the cycle.
				logging.From(ctx).Error("corrupted issue record, treating as absent",
					"key", key, logging.ErrAttr(err))
				return nil
			}
			iss = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return iss, nil
}

func (r *Badger) PutIssue(ctx context.Context, iss *issue.TrackedIssue) error {
	if err := iss.Validate(); err != nil {
		return r.eb.Wrap(err, "invalid tracked issue")
	}

	return r.db.Update(func(txn *badger.Txn) error {
		put := *iss
		key := []byte(issuePrefix + iss.Key.String())

		// created_at is stable across upserts
		if item, err := txn.Get(key); err == nil {
			_ = item.Value(func(val []byte) error {
				var existing issue.TrackedIssue
				if err := json.Unmarshal(val, &existing); err == nil {
					put.CreatedAt = existing.CreatedAt
				}
				return nil
			})
		}

		raw, err := json.Marshal(&put)
		if err != nil {
			return r.eb.Wrap(err, "failed to encode issue", goerr.V("key", iss.Key))
		}
		if err := txn.Set(key, raw); err != nil {
			return r.eb.Wrap(err, "failed to put issue", goerr.V("key", iss.Key))
		}
		return nil
	})
}

func (r *Badger) DeleteIssue(ctx context.Context, key types.IssueKey) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(issuePrefix + key.String()))
	})
	if err != nil && err != badger.ErrKeyNotFound {
		return r.eb.Wrap(err, "failed to delete issue", goerr.V("key", key))
	}
	return nil
}

func (r *Badger) ListIssues(ctx context.Context, status types.IssueStatus) ([]*issue.TrackedIssue, error) {
	var out []*issue.TrackedIssue
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(issuePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var iss issue.TrackedIssue
				if err := json.Unmarshal(val, &iss); err != nil {
					logging.From(ctx).Error("corrupted issue record, skipping",
						"key", string(it.Item().Key()), logging.ErrAttr(err))
					return nil
				}
				if status != "" && iss.Status != status {
					return nil
				}
				out = append(out, &iss)
				return nil
			})
			if err != nil {
				return r.eb.Wrap(err, "failed to read issue record")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Badger) CheckCooldown(ctx context.Context, action, target string) (bool, error) {
	remaining, err := r.RemainingCooldown(ctx, action, target)
	if err != nil {
		return false, err
	}
	return remaining == 0, nil
}

func (r *Badger) SetCooldown(ctx context.Context, action, target string, ttl time.Duration) error {
	value := cooldownValue{
		Action:    action,
		Target:    normalizeTarget(target),
		ExpiresAt: clock.Now(ctx).Add(ttl),
	}
	raw, err := json.Marshal(&value)
	if err != nil {
		return r.eb.Wrap(err, "failed to encode cooldown")
	}

	return r.db.Update(func(txn *badger.Txn) error {
		key := []byte(cooldownPrefix + cooldownKey(action, target))
		if err := txn.Set(key, raw); err != nil {
			return r.eb.Wrap(err, "failed to set cooldown",
				goerr.V("action", action), goerr.V("target", target))
		}
		return nil
	})
}

func (r *Badger) RemainingCooldown(ctx context.Context, action, target string) (time.Duration, error) {
	key := []byte(cooldownPrefix + cooldownKey(action, target))

	var remaining time.Duration
	expired := false
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return r.eb.Wrap(err, "failed to get cooldown",
				goerr.V("action", action), goerr.V("target", target))
		}
		return item.Value(func(val []byte) error {
			var decoded cooldownValue
			if err := json.Unmarshal(val, &decoded); err != nil {
				logging.From(ctx).Error("corrupted cooldown record, treating as absent",
					"key", string(key), logging.ErrAttr(err))
				expired = true
				return nil
			}
			remaining = decoded.ExpiresAt.Sub(clock.Now(ctx))
			if remaining <= 0 {
				remaining = 0
				expired = true
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	// Expired entries are removed eagerly on read.
	if expired {
		if err := r.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		}); err != nil {
			logging.From(ctx).Warn("failed to remove expired cooldown",
				"key", string(key), logging.ErrAttr(err))
		}
	}

	return remaining, nil
}

func (r *Badger) Close() error {
	if err := r.db.Close(); err != nil {
		return r.eb.Wrap(err, "failed to close state database")
	}
	return nil
}

func normalizeTarget(target string) string {
	if target == "" {
		return "default"
	}
	return target
}

func cooldownKey(action, target string) string {
	return strings.Join([]string{action, normalizeTarget(target)}, "/")
}
