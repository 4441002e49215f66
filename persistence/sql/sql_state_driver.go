// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package sql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xcherryio/durable/common/log"
	"github.com/xcherryio/durable/common/log/tag"
	"github.com/xcherryio/durable/common/uuid"
	"github.com/xcherryio/durable/config"
	"github.com/xcherryio/durable/extensions"
	"github.com/xcherryio/durable/memo"
	"github.com/xcherryio/durable/persistence"
)

type sqlStateDriverImpl struct {
	driverId string
	session  extensions.SQLDBSession
	logger   log.Logger
	now      func() time.Time
}

func NewSQLStateDriver(cfg config.StateStoreConfig, logger log.Logger) (persistence.StateDriver, error) {
	if cfg.SQL == nil {
		return nil, fmt.Errorf("sql config is required for the state store")
	}
	session, err := extensions.NewSQLSession(cfg.SQL)
	if err != nil {
		return nil, err
	}
	return &sqlStateDriverImpl{
		driverId: cfg.DriverID,
		session:  session,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (p *sqlStateDriverImpl) DriverID() string {
	return p.driverId
}

func (p *sqlStateDriverImpl) Close() error {
	return p.session.Close()
}

func (p *sqlStateDriverImpl) LoadSteps(ctx context.Context, steps *memo.Store) error {
	// state key -> hashed step ids referencing it
	owned := map[string][]string{}
	steps.Range(func(hashedId string, m memo.Memo) bool {
		if m.Kind != memo.KindData {
			return true
		}
		placeholder, ok := persistence.ParsePlaceholder(m.Data)
		if ok && placeholder.DriverID == p.driverId {
			owned[placeholder.StateKey] = append(owned[placeholder.StateKey], hashedId)
		}
		return true
	})
	if len(owned) == 0 {
		return nil
	}

	keys := make([]string, 0, len(owned))
	for key := range owned {
		keys = append(keys, key)
	}
	rows, err := p.session.SelectStepStates(ctx, keys)
	if err != nil {
		p.logStoreError("failed to load step states", err, tag.Count(len(keys)))
		return err
	}

	for _, row := range rows {
		for _, hashedId := range owned[row.StateKey] {
			steps.Replace(hashedId, memo.Memo{Kind: memo.KindData, Data: json.RawMessage(row.Data)})
		}
		delete(owned, row.StateKey)
	}
	if len(owned) > 0 {
		missing := make([]string, 0, len(owned))
		for key := range owned {
			missing = append(missing, key)
		}
		return fmt.Errorf("step states %v not found in driver %v", missing, p.driverId)
	}

	p.logger.Debug("loaded step states", tag.Count(len(rows)))
	return nil
}

func (p *sqlStateDriverImpl) SaveStep(ctx context.Context, runId string, value any) (map[string]any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("step output is not serializable: %w", err)
	}

	// a fresh key is drawn once if the first one collides
	for attempt := 0; ; attempt++ {
		stateKey := uuid.MustNewUUID()
		err = p.session.InsertStepState(ctx, extensions.StepStateRow{
			StateKey:  stateKey,
			RunId:     runId,
			Data:      data,
			CreatedAt: p.now(),
		})
		if err == nil {
			return persistence.NewPlaceholder(p.driverId, stateKey), nil
		}
		if attempt == 0 && p.session.IsDupEntryError(err) {
			p.logger.Warn("step state key collided, retrying", tag.RunId(runId))
			continue
		}
		p.logStoreError("failed to save step state", err, tag.RunId(runId))
		return nil, err
	}
}

func (p *sqlStateDriverImpl) DeleteRunSteps(ctx context.Context, runId string) error {
	deleted, err := p.session.DeleteRunStepStates(ctx, runId)
	if err != nil {
		p.logStoreError("failed to delete step states", err, tag.RunId(runId))
		return err
	}
	p.logger.Debug("deleted step states", tag.RunId(runId), tag.Count(int(deleted)))
	return nil
}

func (p *sqlStateDriverImpl) logStoreError(msg string, err error, tags ...tag.Tag) {
	tags = append(tags, tag.Error(err))
	switch {
	case p.session.IsTimeoutError(err):
		p.logger.Warn(msg+": step state store timed out", tags...)
	case p.session.IsThrottlingError(err):
		p.logger.Warn(msg+": step state store is throttling", tags...)
	default:
		p.logger.Error(msg, tags...)
	}
}
